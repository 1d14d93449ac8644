package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/devrev/pairfs/pkg/api"
)

func (a *app) upload(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	name := fs.String("name", "", "blob id (default: generated)")
	positional, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	if len(positional) != 1 {
		return fmt.Errorf("expected exactly one file")
	}

	data, err := os.ReadFile(positional[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", positional[0], err)
	}

	result, err := a.orchestrator.UploadBlob(ctx, data, *name)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%s\t%d bytes\t%d chunks\t%d replica writes\t%d failed\n",
		result.BlobID, result.Size, result.Chunks, result.ReplicaWrites, result.ReplicaFailures)
	return nil
}

func (a *app) download(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	out := fs.String("o", "", "output file (default: stdout)")
	positional, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	if len(positional) != 1 {
		return fmt.Errorf("expected exactly one blob id")
	}

	data, err := a.orchestrator.DownloadBlob(ctx, positional[0])
	if err != nil {
		return err
	}
	if *out == "" {
		_, err = a.stdout.Write(data)
		return err
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", *out, err)
	}
	fmt.Fprintf(a.stderr, "wrote %d bytes to %s\n", len(data), *out)
	return nil
}

func (a *app) delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected exactly one blob id")
	}
	if err := a.coordinator.DeleteBlob(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "deleted %s\n", args[0])
	return nil
}

func (a *app) list(ctx context.Context) error {
	blobs, err := a.coordinator.ListBlobs(ctx)
	if err != nil {
		return err
	}
	sort.Slice(blobs, func(i, j int) bool { return blobs[i].BlobID < blobs[j].BlobID })

	table := tablewriter.NewWriter(a.stdout)
	table.Header([]string{"Blob ID", "Size", "Chunks", "Replicas", "Created"})
	for _, b := range blobs {
		table.Append([]string{
			b.BlobID,
			strconv.FormatInt(b.Size, 10),
			strconv.Itoa(chunkCount(b)),
			strconv.Itoa(len(b.Chunks)),
			b.CreatedAt.Format(time.RFC3339),
		})
	}
	return table.Render()
}

func (a *app) status(ctx context.Context) error {
	status, err := a.coordinator.Status(ctx)
	if err != nil {
		return err
	}

	summary := tablewriter.NewWriter(a.stdout)
	summary.Header([]string{"Metric", "Value"})
	summary.Append([]string{"Nodes (healthy/total)", fmt.Sprintf("%d/%d", status.HealthyNodes, status.TotalNodes)})
	summary.Append([]string{"Blobs", strconv.Itoa(status.TotalBlobs)})
	summary.Append([]string{"Chunks", strconv.Itoa(status.TotalChunks)})
	summary.Append([]string{"Replicas", strconv.Itoa(status.TotalReplicas)})
	summary.Append([]string{"Chunk size", strconv.Itoa(status.ChunkSize)})
	summary.Append([]string{"Replication factor", strconv.Itoa(status.ReplicationFactor)})
	if err := summary.Render(); err != nil {
		return err
	}

	nodes := tablewriter.NewWriter(a.stdout)
	nodes.Header([]string{"Node", "URL", "Healthy", "Chunks", "Used MB", "Last Heartbeat"})
	for _, n := range status.LoadDistribution {
		nodes.Append([]string{
			n.NodeID,
			n.URL,
			strconv.FormatBool(n.Healthy),
			strconv.Itoa(n.Chunks),
			strconv.FormatFloat(n.StorageUsedMB, 'f', 2, 64),
			n.LastHeartbeat.Format(time.RFC3339),
		})
	}
	return nodes.Render()
}

func (a *app) integrity(ctx context.Context, args []string) error {
	if len(args) == 2 && args[0] == "run" {
		result, err := a.coordinator.RunPass(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "%s pass in %s: checked=%d repaired=%d relocated=%d created=%d removed=%d unresolved=%d\n",
			result.Pass, result.Duration, result.Checked, result.Repaired, result.Relocated,
			result.Created, result.Removed, result.Unresolved)
		return nil
	}
	if len(args) != 0 {
		return fmt.Errorf("usage: integrity [run repair|replication|stale|gc]")
	}

	stats, err := a.coordinator.IntegrityStats(ctx)
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(a.stdout)
	table.Header([]string{"Counter", "Value"})
	for _, row := range []struct {
		name  string
		value int64
	}{
		{"Checks", stats.TotalChecks},
		{"Repairs", stats.TotalRepairs},
		{"Relocations", stats.TotalRelocations},
		{"Re-replications", stats.TotalReReplications},
		{"Over-replicas removed", stats.TotalOverReplicasRemoved},
		{"Stale removed", stats.TotalStaleRemoved},
		{"Garbage collected", stats.TotalGarbageCollected},
		{"Unresolved", stats.TotalUnresolved},
	} {
		table.Append([]string{row.name, strconv.FormatInt(row.value, 10)})
	}
	passes := make([]string, 0, len(stats.LastRun))
	for pass := range stats.LastRun {
		passes = append(passes, pass)
	}
	sort.Strings(passes)
	for _, pass := range passes {
		table.Append([]string{"Last " + pass, stats.LastRun[pass].Format(time.RFC3339)})
	}
	return table.Render()
}

// chunkCount is the number of distinct chunk indices with at least one replica.
func chunkCount(b api.BlobMetadataResponse) int {
	seen := make(map[int]struct{}, len(b.Chunks))
	for _, c := range b.Chunks {
		seen[c.ChunkIndex] = struct{}{}
	}
	return len(seen)
}
