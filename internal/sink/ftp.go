package sink

import (
	"bytes"
	"context"
	"net"
	"net/url"
	"path"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"

	"github.com/sells-group/incident-etl/internal/resilience"
)

// FTPTarget is a parsed upload destination.
type FTPTarget struct {
	Addr     string
	Dir      string
	File     string
	User     string
	Password string
}

// ParseFTPURL parses ftp://[user[:password]@]host[:port]/dir/file.geojson.
// Credentials in the URL take precedence over user and password.
func ParseFTPURL(raw, user, password string) (*FTPTarget, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, eris.Wrap(err, "ftp sink: parse url")
	}
	if u.Scheme != "ftp" {
		return nil, eris.Errorf("ftp sink: unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, eris.New("ftp sink: url has no host")
	}
	if u.Path == "" || u.Path == "/" || path.Base(u.Path) == "/" {
		return nil, eris.New("ftp sink: url has no file path")
	}

	port := u.Port()
	if port == "" {
		port = "21"
	}
	t := &FTPTarget{
		Addr:     net.JoinHostPort(u.Hostname(), port),
		Dir:      path.Dir(u.Path),
		File:     path.Base(u.Path),
		User:     user,
		Password: password,
	}
	if u.User != nil {
		t.User = u.User.Username()
		if p, ok := u.User.Password(); ok {
			t.Password = p
		}
	}
	return t, nil
}

// FTP uploads the GeoJSON document to an FTP server. The document is stored
// under a temporary name and renamed once complete.
type FTP struct {
	target  *FTPTarget
	timeout time.Duration
	retry   resilience.RetryConfig
}

// NewFTP creates an FTP sink.
func NewFTP(rawURL, user, password string) (*FTP, error) {
	t, err := ParseFTPURL(rawURL, user, password)
	if err != nil {
		return nil, err
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("sink", "ftp upload")
	return &FTP{target: t, timeout: 30 * time.Second, retry: retry}, nil
}

// Name implements Sink.
func (f *FTP) Name() string { return "ftp" }

// Submit implements Sink.
func (f *FTP) Submit(ctx context.Context, sub *Submission) error {
	data, err := sub.GeoJSON()
	if err != nil {
		return eris.Wrap(err, "ftp sink: encode")
	}
	return resilience.Do(ctx, f.retry, func(ctx context.Context) error {
		return f.upload(ctx, data)
	})
}

func (f *FTP) upload(ctx context.Context, data []byte) error {
	c, err := ftp.Dial(f.target.Addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(f.timeout))
	if err != nil {
		return eris.Wrapf(err, "ftp sink: dial %s", f.target.Addr)
	}
	defer c.Quit() //nolint:errcheck

	if err := c.Login(f.target.User, f.target.Password); err != nil {
		return eris.Wrap(err, "ftp sink: login")
	}

	final := path.Join(f.target.Dir, f.target.File)
	tmp := path.Join(f.target.Dir, "."+f.target.File+".part")
	if err := c.Stor(tmp, bytes.NewReader(data)); err != nil {
		return eris.Wrapf(err, "ftp sink: store %s", tmp)
	}
	if err := c.Rename(tmp, final); err != nil {
		return eris.Wrapf(err, "ftp sink: rename to %s", final)
	}
	return nil
}
