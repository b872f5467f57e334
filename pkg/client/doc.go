// Package client is a hand-written Go SDK for the taskflow control
// API: queue and task lifecycle calls over plain net/http, plus a
// WebSocket client for the status feed and per-task log tail.
//
// # Basic usage
//
//	c := client.New("http://localhost:8765")
//	if err := c.Login(ctx, "hunter2"); err != nil {
//	    log.Fatal(err)
//	}
//
//	desc, err := c.CreateQueue(ctx, "gpu-box", "/data/tasks.yaml")
//	tasks, err := c.QueueTasks(ctx, desc.ID)
//
// # Status feed
//
//	sc, err := c.ConnectStatus(ctx)
//	defer sc.Close()
//	for snap := range sc.Snapshots() {
//	    fmt.Printf("running: %v\n", snap.Running)
//	}
package client
