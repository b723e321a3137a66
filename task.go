package hyperftp

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperftp/hyperftp/internal/ratelimit"
)

// TransferDirection distinguishes uploads from downloads.
type TransferDirection int

const (
	DirectionUpload TransferDirection = iota
	DirectionDownload
)

func (d TransferDirection) String() string {
	if d == DirectionUpload {
		return "upload"
	}
	return "download"
}

// TaskState is the lifecycle state of a TransferTask.
type TaskState int32

const (
	TaskPending TaskState = iota
	TaskRunning
	TaskSucceeded
	TaskFailed
	TaskCancelled
)

func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskRunning:
		return "running"
	case TaskSucceeded:
		return "succeeded"
	case TaskFailed:
		return "failed"
	case TaskCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// TaskSnapshot is a point-in-time view of a transfer.
type TaskSnapshot struct {
	Direction  TransferDirection
	LocalPath  string
	RemotePath string
	State      TaskState

	// Transferred is the byte count moved so far.
	Transferred int64

	// Total is the expected byte count, or -1 when unknown.
	Total int64

	Started time.Time

	// Err is set once the task has finished unsuccessfully.
	Err error
}

// TransferTask tracks one asynchronous upload or download. The transfer runs
// on its own goroutine; callers observe it by polling Snapshot, receiving
// from Progress, or blocking on Wait.
type TransferTask struct {
	direction  TransferDirection
	localPath  string
	remotePath string
	started    time.Time

	transferred atomic.Int64
	total       atomic.Int64
	state       atomic.Int32

	errMu sync.Mutex
	err   error

	cancel     chan struct{}
	cancelOnce sync.Once
	done       chan struct{}

	progress   chan TaskSnapshot
	interval   time.Duration
	lastNotify time.Time
}

func newTask(direction TransferDirection, localPath, remotePath string, interval time.Duration) *TransferTask {
	t := &TransferTask{
		direction:  direction,
		localPath:  localPath,
		remotePath: remotePath,
		started:    time.Now(),
		cancel:     make(chan struct{}),
		done:       make(chan struct{}),
		progress:   make(chan TaskSnapshot, 1),
		interval:   interval,
	}
	t.total.Store(-1)
	t.state.Store(int32(TaskRunning))
	return t
}

// Snapshot returns the current progress. It is safe to call from any
// goroutine at any time.
func (t *TransferTask) Snapshot() TaskSnapshot {
	return TaskSnapshot{
		Direction:   t.direction,
		LocalPath:   t.localPath,
		RemotePath:  t.remotePath,
		State:       TaskState(t.state.Load()),
		Transferred: t.transferred.Load(),
		Total:       t.total.Load(),
		Started:     t.started,
		Err:         t.Err(),
	}
}

// Progress returns a channel of throttled snapshots. The channel carries at
// most one snapshot per progress interval, always ends with a final snapshot,
// and is closed when the task finishes. Receivers that fall behind miss
// intermediate snapshots rather than slowing the transfer.
func (t *TransferTask) Progress() <-chan TaskSnapshot {
	return t.progress
}

// Cancel requests cooperative cancellation. The transfer stops at the next
// chunk boundary; Cancel itself never blocks and is safe to call repeatedly.
func (t *TransferTask) Cancel() {
	t.cancelOnce.Do(func() { close(t.cancel) })
}

// Done returns a channel closed when the task finishes in any state.
func (t *TransferTask) Done() <-chan struct{} { return t.done }

// Wait blocks until the task finishes and returns its error, if any.
func (t *TransferTask) Wait() error {
	<-t.done
	return t.Err()
}

// Err returns the task's error once finished, or nil.
func (t *TransferTask) Err() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	return t.err
}

func (t *TransferTask) cancelled() bool {
	select {
	case <-t.cancel:
		return true
	default:
		return false
	}
}

// maybeNotify publishes a snapshot if the progress interval has elapsed.
// Called only from the transfer worker.
func (t *TransferTask) maybeNotify() {
	now := time.Now()
	if now.Sub(t.lastNotify) < t.interval {
		return
	}
	t.lastNotify = now

	select {
	case t.progress <- t.Snapshot():
	default:
	}
}

// finish records the outcome, publishes the final snapshot, and releases
// everyone blocked on Done or Progress.
func (t *TransferTask) finish(err error) {
	switch {
	case err == nil:
		t.state.Store(int32(TaskSucceeded))
	case errors.Is(err, ErrCancelled):
		t.state.Store(int32(TaskCancelled))
	default:
		t.state.Store(int32(TaskFailed))
	}

	t.errMu.Lock()
	t.err = err
	t.errMu.Unlock()

	// Evict a stale snapshot so the final one always lands.
	select {
	case <-t.progress:
	default:
	}
	t.progress <- t.Snapshot()
	close(t.progress)

	close(t.done)
}

// Upload starts copying a local file to the server under remotePath. It
// returns immediately; the returned task reports progress and completion.
// The session stays Busy until the transfer finishes.
func (s *Session) Upload(localPath, remotePath string) (*TransferTask, error) {
	if err := s.beginOp("upload"); err != nil {
		return nil, err
	}

	task := newTask(DirectionUpload, localPath, remotePath, s.progressInterval)
	go s.runTransfer(task, s.upload)

	return task, nil
}

// Download starts copying a remote file to localPath. It returns
// immediately; the returned task reports progress and completion. A failed
// or cancelled download keeps the partial local file.
func (s *Session) Download(remotePath, localPath string) (*TransferTask, error) {
	if err := s.beginOp("download"); err != nil {
		return nil, err
	}

	task := newTask(DirectionDownload, localPath, remotePath, s.progressInterval)
	go s.runTransfer(task, s.download)

	return task, nil
}

func (s *Session) runTransfer(task *TransferTask, fn func(*TransferTask) error) {
	err := fn(task)
	if err != nil {
		err = &OpError{Op: task.direction.String(), Path: task.remotePath, Err: err}
	}

	s.endOp()
	s.failIfFatal(err)
	task.finish(err)

	s.logger.Info("transfer finished",
		"direction", task.direction.String(),
		"remote", task.remotePath,
		"state", TaskState(task.state.Load()).String(),
		"bytes", task.transferred.Load())
}

func (s *Session) upload(task *TransferTask) error {
	f, err := os.Open(task.localPath)
	if err != nil {
		return &IOError{Path: task.localPath, Err: err}
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil {
		task.total.Store(info.Size())
	}

	dataConn, err := s.cmdDataChannel("STOR", task.remotePath)
	if err != nil {
		return err
	}

	limiter := ratelimit.New(s.rateLimit)
	w := ratelimit.NewWriter(dataConn, limiter)

	buf := make([]byte, s.chunkSize)
	for {
		if task.cancelled() {
			return s.abortTransfer(dataConn)
		}

		n, readErr := f.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				_ = s.finishDataChannel(dataConn)
				return &DataChannelError{Mode: "transfer", Err: writeErr}
			}
			task.transferred.Add(int64(n))
			task.maybeNotify()
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_ = s.finishDataChannel(dataConn)
			return &IOError{Path: task.localPath, Err: readErr}
		}
	}

	return s.finishDataChannel(dataConn)
}

func (s *Session) download(task *TransferTask) error {
	// SIZE gives the progress total; servers without it leave it unknown.
	if size, err := s.size(task.remotePath); err == nil {
		task.total.Store(size)
	}

	f, err := os.Create(task.localPath)
	if err != nil {
		return &IOError{Path: task.localPath, Err: err}
	}
	defer f.Close()

	dataConn, err := s.cmdDataChannel("RETR", task.remotePath)
	if err != nil {
		return err
	}

	limiter := ratelimit.New(s.rateLimit)
	r := ratelimit.NewReader(dataConn, limiter)

	buf := make([]byte, s.chunkSize)
	for {
		if task.cancelled() {
			// The partial file stays on disk for the caller to inspect
			// or resume from.
			return s.abortTransfer(dataConn)
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			if _, writeErr := f.Write(buf[:n]); writeErr != nil {
				_ = s.finishDataChannel(dataConn)
				return &IOError{Path: task.localPath, Err: writeErr}
			}
			task.transferred.Add(int64(n))
			task.maybeNotify()
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_ = s.finishDataChannel(dataConn)
			return &DataChannelError{Mode: "transfer", Err: readErr}
		}
	}

	if err := s.finishDataChannel(dataConn); err != nil {
		return err
	}

	if err := f.Sync(); err != nil {
		return &IOError{Path: task.localPath, Err: err}
	}

	return nil
}

// abortTransfer tears down the data channel after a cancellation and drains
// the server's completion reply, whatever its code, so the control channel
// stays in sync. The server typically answers 426 for an aborted transfer;
// that is the expected outcome here, not a failure.
func (s *Session) abortTransfer(dataConn net.Conn) error {
	if err := s.finishDataChannel(dataConn); err != nil {
		var pe *ProtocolError
		if !errors.As(err, &pe) {
			s.logger.Debug("teardown after cancel", "error", err)
		}
	}
	return ErrCancelled
}
