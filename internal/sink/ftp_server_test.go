package sink

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// miniFTPServer is a minimal FTP server for testing. It supports just enough
// of the protocol for login, passive STOR and RNFR/RNTO.
type miniFTPServer struct {
	listener net.Listener
	user     string
	password string
	wg       sync.WaitGroup

	mu       sync.Mutex
	files    map[string]string // path -> content
	commands []string
}

func newMiniFTPServer(t *testing.T, user, password string) *miniFTPServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &miniFTPServer{
		listener: ln,
		user:     user,
		password: password,
		files:    make(map[string]string),
	}

	s.wg.Add(1)
	go s.serve()

	t.Cleanup(s.close)
	return s
}

func (s *miniFTPServer) addr() string {
	return s.listener.Addr().String()
}

func (s *miniFTPServer) close() {
	s.listener.Close() //nolint:errcheck
	s.wg.Wait()
}

func (s *miniFTPServer) file(path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.files[path]
	return content, ok
}

func (s *miniFTPServer) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *miniFTPServer) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *miniFTPServer) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close() //nolint:errcheck

	conn.SetDeadline(time.Now().Add(10 * time.Second)) //nolint:errcheck

	writer := bufio.NewWriter(conn)
	reader := bufio.NewReader(conn)
	reply := func(format string, args ...any) {
		fmt.Fprintf(writer, format+"\r\n", args...) //nolint:errcheck
		writer.Flush()                              //nolint:errcheck
	}

	reply("220 Mini FTP Server ready")

	var (
		dataListener net.Listener
		user         string
		renameFrom   string
	)
	defer func() {
		if dataListener != nil {
			dataListener.Close() //nolint:errcheck
		}
	}()

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		parts := strings.SplitN(line, " ", 2)
		cmd := strings.ToUpper(parts[0])
		arg := ""
		if len(parts) > 1 {
			arg = parts[1]
		}

		s.mu.Lock()
		s.commands = append(s.commands, cmd)
		s.mu.Unlock()

		switch cmd {
		case "USER":
			user = arg
			reply("331 Password required")

		case "PASS":
			if user != s.user || arg != s.password {
				reply("530 Login incorrect")
				continue
			}
			reply("230 User logged in")

		case "FEAT":
			fmt.Fprintf(writer, "211-Features:\r\n") //nolint:errcheck
			fmt.Fprintf(writer, " UTF8\r\n")         //nolint:errcheck
			reply("211 End")

		case "TYPE":
			reply("200 Type set to %s", arg)

		case "OPTS":
			reply("200 OK")

		case "EPSV":
			dataListener, err = net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				reply("425 Can't open data connection")
				continue
			}
			reply("229 Entering Extended Passive Mode (|||%d|)", dataListener.Addr().(*net.TCPAddr).Port)

		case "PASV":
			dataListener, err = net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				reply("425 Can't open data connection")
				continue
			}
			port := dataListener.Addr().(*net.TCPAddr).Port
			reply("227 Entering Passive Mode (127,0,0,1,%d,%d)", port/256, port%256)

		case "STOR":
			if dataListener == nil {
				reply("425 Use PASV first")
				continue
			}
			reply("150 Opening data connection")

			dataConn, err := dataListener.Accept()
			if err != nil {
				reply("425 Can't open data connection")
				continue
			}
			data, _ := io.ReadAll(dataConn)
			dataConn.Close()     //nolint:errcheck
			dataListener.Close() //nolint:errcheck
			dataListener = nil

			s.mu.Lock()
			s.files[arg] = string(data)
			s.mu.Unlock()
			reply("226 Transfer complete")

		case "RNFR":
			if _, ok := s.file(arg); !ok {
				reply("550 File not found")
				continue
			}
			renameFrom = arg
			reply("350 Ready for RNTO")

		case "RNTO":
			if renameFrom == "" {
				reply("503 Bad sequence of commands")
				continue
			}
			s.mu.Lock()
			s.files[arg] = s.files[renameFrom]
			delete(s.files, renameFrom)
			s.mu.Unlock()
			renameFrom = ""
			reply("250 Rename successful")

		case "QUIT":
			reply("221 Goodbye")
			return

		default:
			reply("502 Command not implemented")
		}
	}
}
