package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/cuemby/sdfs/pkg/client"
	"github.com/cuemby/sdfs/pkg/log"
	"github.com/cuemby/sdfs/pkg/membership"
	"github.com/cuemby/sdfs/pkg/storagenode"
	"github.com/cuemby/sdfs/pkg/types"
)

// runREPL drives the interactive stdin command loop described in the
// CLI surface: leave, list_mem, list_self, put, get, delete, ls, store,
// multiread, multiwrite, maple, juice. It returns once the user types
// "leave", stdin closes, or ctx is cancelled.
func runREPL(ctx context.Context, self types.NodeID, view *membership.View, elector *membership.Elector, store *storagenode.FileStore, cli *client.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "leave":
			return
		case "list_mem":
			for _, n := range view.Snapshot() {
				fmt.Printf("%s heartbeat=%d suspected=%v\n", n.ID, n.Heartbeat, n.Suspected)
			}
		case "list_self":
			fmt.Println(self)
		case "put":
			if len(fields) != 3 {
				fmt.Println("usage: put <local> <sdfs>")
				continue
			}
			cmdPut(ctx, elector, cli, fields[1], fields[2])
		case "get":
			if len(fields) != 3 {
				fmt.Println("usage: get <sdfs> <local>")
				continue
			}
			cmdGet(ctx, elector, cli, fields[1], fields[2])
		case "delete":
			if len(fields) != 2 {
				fmt.Println("usage: delete <sdfs>")
				continue
			}
			cmdDelete(ctx, elector, fields[1])
		case "ls":
			if len(fields) != 2 {
				fmt.Println("usage: ls <sdfs>")
				continue
			}
			cmdLs(ctx, elector, fields[1])
		case "store":
			cmdStore(store)
		case "multiread":
			if len(fields) < 4 {
				fmt.Println("usage: multiread <sdfs> <local> <vm>...")
				continue
			}
			cmdMultiread(ctx, cli, fields[1], fields[2], fields[3:])
		case "multiwrite":
			if len(fields) < 4 {
				fmt.Println("usage: multiwrite <local> <sdfs> <vm>...")
				continue
			}
			cmdMultiwrite(ctx, cli, fields[1], fields[2], fields[3:])
		case "maple":
			if len(fields) < 5 {
				fmt.Println("usage: maple <exe> <n> <prefix> <inputPrefix> [args...]")
				continue
			}
			cmdMaple(ctx, elector, fields[1], fields[2], fields[3], fields[4], fields[5:])
		case "juice":
			if len(fields) != 6 {
				fmt.Println("usage: juice <exe> <n> <prefix> <outputFile> <delete?>")
				continue
			}
			cmdJuice(ctx, elector, fields[1], fields[2], fields[3], fields[4], fields[5])
		default:
			fmt.Printf("unrecognized command: %s\n", fields[0])
		}
	}
}

func cmdPut(ctx context.Context, elector *membership.Elector, cli *client.Client, local, sdfs string) {
	addr, err := leaderAddr(elector)
	if err != nil {
		fmt.Println("put failed:", err)
		return
	}
	data, err := os.ReadFile(local)
	if err != nil {
		fmt.Println("put failed:", err)
		return
	}
	installed, err := putViaLeader(ctx, addr, sdfs, data, func(candidate types.NodeID) error {
		return cli.Put(ctx, candidate, sdfs, data)
	})
	if err != nil {
		fmt.Println("put failed:", err)
		return
	}
	fmt.Printf("put %s -> %s, replicas: %v\n", local, sdfs, installed)
}

func cmdGet(ctx context.Context, elector *membership.Elector, cli *client.Client, sdfs, local string) {
	addr, err := leaderAddr(elector)
	if err != nil {
		fmt.Println("get failed:", err)
		return
	}
	data, err := getViaLeader(ctx, addr, sdfs, func(replicas []types.NodeID) ([]byte, error) {
		var lastErr error
		for _, r := range replicas {
			d, err := cli.Get(ctx, r, sdfs)
			if err == nil {
				return d, nil
			}
			lastErr = err
		}
		if lastErr == nil {
			lastErr = fmt.Errorf("no replicas available")
		}
		return nil, lastErr
	})
	if err != nil {
		fmt.Println("get failed:", err)
		return
	}
	if err := os.WriteFile(local, data, 0o644); err != nil {
		fmt.Println("get failed:", err)
		return
	}
	fmt.Printf("get %s -> %s (%d bytes)\n", sdfs, local, len(data))
}

func cmdDelete(ctx context.Context, elector *membership.Elector, sdfs string) {
	addr, err := leaderAddr(elector)
	if err != nil {
		fmt.Println("delete failed:", err)
		return
	}
	if err := deleteViaLeader(ctx, addr, sdfs); err != nil {
		fmt.Println("delete failed:", err)
		return
	}
	fmt.Printf("deleted %s\n", sdfs)
}

func cmdLs(ctx context.Context, elector *membership.Elector, sdfs string) {
	addr, err := leaderAddr(elector)
	if err != nil {
		fmt.Println("ls failed:", err)
		return
	}
	machines, err := lsViaLeader(ctx, addr, sdfs)
	if err != nil {
		fmt.Println("ls failed:", err)
		return
	}
	if len(machines) == 0 {
		fmt.Println("not found")
		return
	}
	for _, m := range machines {
		fmt.Println(m)
	}
}

func cmdStore(store *storagenode.FileStore) {
	files, err := store.ListFiles()
	if err != nil {
		fmt.Println("store failed:", err)
		return
	}
	for _, f := range files {
		fmt.Println(f)
	}
}

// cmdMultiread fetches sdfs from each named vm directly, writing the
// first successful fetch to local; this is a client-side convenience
// fan-out over the same storage-node GET used by single-replica get,
// not a separate leader-orchestrated wire operation (see DESIGN.md).
func cmdMultiread(ctx context.Context, cli *client.Client, sdfs, local string, vms []string) {
	for _, vm := range vms {
		data, err := cli.Get(ctx, types.NodeID(vm), sdfs)
		if err != nil {
			fmt.Printf("multiread: %s failed: %v\n", vm, err)
			continue
		}
		if err := os.WriteFile(local, data, 0o644); err != nil {
			fmt.Println("multiread failed:", err)
			return
		}
		fmt.Printf("multiread %s <- %s (%d bytes)\n", local, vm, len(data))
		return
	}
	fmt.Println("multiread failed: no vm served the file")
}

// cmdMultiwrite pushes local directly to every named vm, bypassing the
// leader's placement decision; see DESIGN.md for why this is scoped as a
// direct client fan-out rather than a leader-mediated operation.
func cmdMultiwrite(ctx context.Context, cli *client.Client, local, sdfs string, vms []string) {
	data, err := os.ReadFile(local)
	if err != nil {
		fmt.Println("multiwrite failed:", err)
		return
	}
	ok := 0
	for _, vm := range vms {
		if err := cli.Put(ctx, types.NodeID(vm), sdfs, data); err != nil {
			fmt.Printf("multiwrite: %s failed: %v\n", vm, err)
			continue
		}
		ok++
	}
	fmt.Printf("multiwrite %s -> %s: %d/%d succeeded\n", local, sdfs, ok, len(vms))
}

func cmdMaple(ctx context.Context, elector *membership.Elector, exe, n, prefix, inputPrefix string, jobArgs []string) {
	jobID := uuid.New().String()
	logger := log.WithJobID(jobID)
	addr, err := leaderAddr(elector)
	if err != nil {
		fmt.Println("maple failed:", err)
		return
	}
	numWorkers, err := strconv.Atoi(n)
	if err != nil {
		fmt.Println("maple failed: invalid worker count:", err)
		return
	}
	logger.Info().Str("executable", exe).Int("workers", numWorkers).Msg("submitting maple job")
	keys, err := mapleViaLeader(ctx, addr, exe, uint32(numWorkers), prefix, inputPrefix, jobArgs)
	if err != nil {
		logger.Warn().Err(err).Msg("maple job failed")
		fmt.Println("maple failed:", err)
		return
	}
	logger.Info().Int("keys", len(keys)).Msg("maple job finished")
	fmt.Printf("maple produced keys (job %s): %v\n", jobID, keys)
}

func cmdJuice(ctx context.Context, elector *membership.Elector, exe, n, inputPrefix, outputFile, deleteFlag string) {
	jobID := uuid.New().String()
	logger := log.WithJobID(jobID)
	addr, err := leaderAddr(elector)
	if err != nil {
		fmt.Println("juice failed:", err)
		return
	}
	numWorkers, err := strconv.Atoi(n)
	if err != nil {
		fmt.Println("juice failed: invalid worker count:", err)
		return
	}
	deleteAfter := deleteFlag == "true" || deleteFlag == "1"
	logger.Info().Str("executable", exe).Int("workers", numWorkers).Str("output", outputFile).Msg("submitting juice job")
	if err := juiceViaLeader(ctx, addr, exe, uint32(numWorkers), inputPrefix, outputFile, deleteAfter); err != nil {
		logger.Warn().Err(err).Msg("juice job failed")
		fmt.Println("juice failed:", err)
		return
	}
	logger.Info().Msg("juice job finished")
	fmt.Printf("juice wrote %s (job %s)\n", outputFile, jobID)
}
