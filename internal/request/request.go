// Package request is the web server's view of one client request: parse the
// connection, read the named file, send it back.
package request

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/shlex"
)

// Request is one parsed request bound to its connection.
type Request interface {
	// FileName is the cleaned, slash-separated name of the requested file.
	FileName() string

	// ReadFile loads the file's bytes from storage into Data.
	ReadFile() error

	Data() []byte
	SetData(data []byte)

	// SendFile writes Data to the client.
	SendFile() error

	// Close tears the connection down.
	Close() error
}

// Opener turns an accepted connection into a Request.
type Opener interface {
	Open(conn net.Conn) (Request, error)
}

var (
	ErrMalformed   = errors.New("malformed request line")
	ErrMethod      = errors.New("unsupported method")
	ErrLineTooLong = errors.New("request line too long")
)

const maxLineBytes = 8 << 10

// FileOpener serves files below Root.
type FileOpener struct {
	Root string
}

// NewFileOpener returns an Opener serving files from root.
func NewFileOpener(root string) *FileOpener {
	return &FileOpener{Root: root}
}

// Open reads the request line ("GET /name HTTP/1.x") and the header block.
// The connection is closed if the request cannot be parsed.
func (o *FileOpener) Open(conn net.Conn) (Request, error) {
	br := bufio.NewReaderSize(conn, 4096)

	line, err := readLine(br)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read request line: %w", err)
	}
	name, err := parseRequestLine(line)
	if err != nil {
		conn.Close()
		return nil, err
	}

	// Headers are read and ignored, up to the blank line.
	for {
		h, err := readLine(br)
		if err != nil || h == "" {
			break
		}
	}

	return &fileRequest{conn: conn, root: o.Root, name: name}, nil
}

func readLine(br *bufio.Reader) (string, error) {
	var sb strings.Builder
	for {
		chunk, isPrefix, err := br.ReadLine()
		if err != nil {
			return "", err
		}
		sb.Write(chunk)
		if sb.Len() > maxLineBytes {
			return "", ErrLineTooLong
		}
		if !isPrefix {
			return sb.String(), nil
		}
	}
}

// parseRequestLine returns the cleaned file name from a request line.
// Quoted names may contain spaces.
func parseRequestLine(line string) (string, error) {
	fields, err := shlex.Split(line)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(fields) < 2 {
		return "", ErrMalformed
	}
	if fields[0] != "GET" {
		return "", fmt.Errorf("%w: %s", ErrMethod, fields[0])
	}
	name := strings.TrimPrefix(path.Clean("/"+fields[1]), "/")
	if name == "" {
		name = "index.html"
	}
	return name, nil
}

type fileRequest struct {
	conn net.Conn
	root string
	name string
	data []byte
}

func (r *fileRequest) FileName() string    { return r.name }
func (r *fileRequest) Data() []byte        { return r.data }
func (r *fileRequest) SetData(data []byte) { r.data = data }

func (r *fileRequest) ReadFile() error {
	data, err := os.ReadFile(filepath.Join(r.root, filepath.FromSlash(r.name)))
	if err != nil {
		r.reply("404 Not Found", nil)
		return fmt.Errorf("read %s: %w", r.name, err)
	}
	r.data = data
	return nil
}

func (r *fileRequest) SendFile() error {
	return r.reply("200 OK", r.data)
}

func (r *fileRequest) reply(status string, body []byte) error {
	header := fmt.Sprintf("HTTP/1.0 %s\r\nContent-Length: %d\r\nConnection: close\r\n\r\n", status, len(body))
	if _, err := r.conn.Write([]byte(header)); err != nil {
		return fmt.Errorf("send %s: %w", r.name, err)
	}
	if _, err := r.conn.Write(body); err != nil {
		return fmt.Errorf("send %s: %w", r.name, err)
	}
	return nil
}

func (r *fileRequest) Close() error {
	return r.conn.Close()
}
