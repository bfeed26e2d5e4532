/*
Package membership implements the gossip-style failure detector and the
bully leader election algorithm that sit underneath the file coordinator
and dispatcher.

View holds each node's local picture of the cluster (MemberView); Gossiper
exchanges that view over UDP with up to three live peers every GossipPeriod;
the failure monitor marks a member suspected after T_FAIL of silence and
drops it after T_CLEAN; Elector runs the bully algorithm over a second UDP
socket whenever the current leader is judged gone, favoring the lowest
byte-value NodeID.
*/
package membership
