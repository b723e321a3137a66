// Package hyperftp implements the session and transfer core of an FTP/FTPS
// client: connection lifecycle, command orchestration, passive and active
// data channels, concurrent transfers with progress reporting, and directory
// listing parsing.
//
// # Overview
//
// A Session owns exactly one control connection and walks an explicit state
// machine (Disconnected, Connecting, Ready, Busy, Closing, Failed). Metadata
// operations (List, Delete, Rename, MakeDir, ChangeDir, ...) are synchronous
// command/reply exchanges; file transfers run on their own worker goroutine
// and are observed through a TransferTask rather than callbacks.
//
// # Basic Usage
//
//	sess, err := hyperftp.NewSession(hyperftp.ConnectionProfile{
//	    Host:        "ftp.example.com",
//	    Port:        21,
//	    Anonymous:   true,
//	    PassiveMode: true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := sess.Connect(); err != nil {
//	    log.Fatal(err)
//	}
//	defer sess.Disconnect()
//
//	entries, err := sess.List("/pub")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, e := range entries {
//	    fmt.Println(e.Name, e.Size)
//	}
//
// # Transfers
//
// Upload and Download return a started *TransferTask. The caller polls
// Snapshot, consumes the bounded Progress channel, or blocks in Wait:
//
//	task, err := sess.Download("/pub/data.csv", "data.csv")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for snap := range task.Progress() {
//	    fmt.Printf("\r%d/%d bytes", snap.Transferred, snap.Total)
//	}
//	if err := task.Wait(); err != nil {
//	    log.Fatal(err)
//	}
//
// A running task may be cancelled between chunks with task.Cancel; the task
// terminates in TaskCancelled and the session stays usable.
//
// # FTPS
//
// Profiles with Secure set upgrade the control connection with AUTH TLS and
// protect the data channel (PBSZ 0 / PROT P). Certificate verification is on
// by default; pass a custom tls.Config via WithTLSConfig to relax it:
//
//	sess, err := hyperftp.NewSession(profile,
//	    hyperftp.WithTLSConfig(&tls.Config{InsecureSkipVerify: true}),
//	)
//
// # Error Handling
//
// Failures carry typed context: *ProtocolError for negative server replies,
// *ConnectError, *TLSError, *DataChannelError, *StateError and *IOError for
// the respective layers, and ErrCancelled for cooperative cancellation.
// Operation errors are wrapped in *OpError naming the operation and remote
// path. errors.Is(err, hyperftp.ErrNotFound) matches 550 replies.
package hyperftp
