package main

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sigmanight/basiliskllm/pkg/logger"
)

// ipcMessage is what a second launch sends to the already-running
// instance: "focus" wakes the primary window, "open_file" asks it to load
// one more archive (spec §6: a second invocation with a path argument
// hands the file to the running instance instead of opening a second
// window).
type ipcMessage struct {
	Command string `json:"command"`
	Path    string `json:"path,omitempty"`
}

const lockFileName = "basiliskllm.lock"

// lockFile is the on-disk shape of the single-instance lock: the owning
// process's PID and the loopback port its IPC server listens on.
type lockFile struct {
	PID  int `json:"pid"`
	Port int `json:"port"`
}

func lockFilePath(configDir string) string {
	return filepath.Join(configDir, lockFileName)
}

func readLockFile(path string) (lockFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return lockFile{}, err
	}
	var lf lockFile
	if err := json.Unmarshal(raw, &lf); err != nil {
		return lockFile{}, err
	}
	return lf, nil
}

func writeLockFile(path string, lf lockFile) error {
	raw, err := json.Marshal(lf)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

// dialRunningInstance tries to reach a primary instance's IPC server,
// returning the live connection if one answers within dialTimeout.
func dialRunningInstance(port int, dialTimeout time.Duration) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	url := fmt.Sprintf("ws://127.0.0.1:%d/ipc", port)
	conn, _, err := dialer.Dial(url, nil)
	return conn, err
}

// sendToRunningInstance opens a short-lived connection to the primary
// instance's IPC server and sends one message.
func sendToRunningInstance(port int, msg ipcMessage) error {
	conn, err := dialRunningInstance(port, 2*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()
	return conn.WriteJSON(msg)
}

// upgrader is permissive about origin since the IPC server only ever
// accepts loopback connections from the same user's second invocation.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SingleInstance guards against two BasiliskLLM processes opening the
// same config directory at once. If this process wins the race it starts
// a loopback IPC server and becomes the primary; otherwise it hands its
// arguments to the existing primary and the caller should exit.
type SingleInstance struct {
	Primary  bool
	Messages chan ipcMessage

	listener net.Listener
	lockPath string
}

// Acquire attempts to become the primary instance for configDir. If
// another live instance is already listening, it forwards msg (if
// non-nil) to it and returns Primary=false.
func Acquire(configDir string, msg *ipcMessage) (*SingleInstance, error) {
	path := lockFilePath(configDir)

	if lf, err := readLockFile(path); err == nil {
		if conn, dialErr := dialRunningInstance(lf.Port, 500*time.Millisecond); dialErr == nil {
			conn.Close()
			if msg != nil {
				if err := sendToRunningInstance(lf.Port, *msg); err != nil {
					logger.WarnCF("cmd", "failed to forward to running instance", map[string]any{"error": err.Error()})
				}
			}
			return &SingleInstance{Primary: false}, nil
		}
		logger.InfoCF("cmd", "stale lock file found, taking over", map[string]any{"pid": lf.PID})
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	port := listener.Addr().(*net.TCPAddr).Port

	if err := writeLockFile(path, lockFile{PID: os.Getpid(), Port: port}); err != nil {
		listener.Close()
		return nil, err
	}

	si := &SingleInstance{
		Primary:  true,
		Messages: make(chan ipcMessage, 8),
		listener: listener,
		lockPath: path,
	}
	go si.serve()
	return si, nil
}

func (s *SingleInstance) serve() {
	mux := http.NewServeMux()
	mux.HandleFunc("/ipc", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var msg ipcMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		select {
		case s.Messages <- msg:
		default:
			logger.WarnCF("cmd", "IPC message dropped, channel full", map[string]any{"command": msg.Command})
		}
	})
	_ = http.Serve(s.listener, mux)
}

// Release closes the IPC listener and removes the lock file. Only the
// primary instance should call this.
func (s *SingleInstance) Release() {
	if s.listener != nil {
		s.listener.Close()
	}
	if s.lockPath != "" {
		_ = os.Remove(s.lockPath)
	}
}
