/*
Package log provides structured logging on top of zerolog.

Every process writes console-formatted logs to stdout and, when a log file
path is configured, mirrors the same stream to /home/logs/vm<N>.log via
io.MultiWriter. Components obtain a child logger tagged with their
name through WithComponent so log lines can be filtered per subsystem
(membership, coordinator, dispatch, storagenode) without touching call sites.
*/
package log
