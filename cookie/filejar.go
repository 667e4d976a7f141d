package cookie

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// FileJar is a Jar persisted as a JSON file.
// The file is rewritten in full after every mutation, and write failures are returned.
type FileJar struct {
	jar  *Jar
	path string
	// serializes file writes
	writeMu sync.Mutex
}

// OpenFileJar loads the jar stored at path.
// A missing file is an error wrapping fs.ErrNotExist; use CreateFileJar to start a new one.
func OpenFileJar(path string, opts ...JarOption) (*FileJar, error) {
	fj := &FileJar{jar: NewJar(opts...), path: path}
	if err := fj.load(); err != nil {
		return nil, err
	}
	return fj, nil
}

// CreateFileJar writes an empty jar to path.
func CreateFileJar(path string, opts ...JarOption) (*FileJar, error) {
	fj := &FileJar{jar: NewJar(opts...), path: path}
	if err := fj.Save(); err != nil {
		return nil, err
	}
	return fj, nil
}

// OpenOrCreateFileJar opens the jar at path, creating it if it does not exist yet.
func OpenOrCreateFileJar(path string, opts ...JarOption) (*FileJar, error) {
	fj, err := OpenFileJar(path, opts...)
	if errors.Is(err, os.ErrNotExist) {
		return CreateFileJar(path, opts...)
	}
	return fj, err
}

func (fj *FileJar) Path() string {
	return fj.path
}

func (fj *FileJar) load() error {
	data, err := os.ReadFile(fj.path)
	if err != nil {
		return &PersistError{Op: "read", Path: fj.path, Err: err}
	}
	if err := fj.jar.Unserialize(data); err != nil {
		return &PersistError{Op: "decode", Path: fj.path, Err: err}
	}
	return nil
}

// Save writes the persistent cookies to the file.
func (fj *FileJar) Save() error {
	data, err := fj.jar.Serialize()
	if err != nil {
		return &PersistError{Op: "encode", Path: fj.path, Err: err}
	}

	fj.writeMu.Lock()
	defer fj.writeMu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(fj.path), filepath.Base(fj.path)+".*")
	if err != nil {
		return &PersistError{Op: "write", Path: fj.path, Err: err}
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return &PersistError{Op: "write", Path: fj.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return &PersistError{Op: "write", Path: fj.path, Err: err}
	}
	if err := os.Rename(tmp.Name(), fj.path); err != nil {
		os.Remove(tmp.Name())
		return &PersistError{Op: "write", Path: fj.path, Err: err}
	}
	log.Trace().Str("path", fj.path).Msg("Saved cookie jar")
	return nil
}

// Close flushes the jar to disk.
func (fj *FileJar) Close() error {
	return fj.Save()
}

// Add stores the cookie and persists the jar.
func (fj *FileJar) Add(c Cookie) (bool, error) {
	ok, err := fj.jar.SetCookie(c)
	if err != nil {
		return ok, err
	}
	return ok, fj.Save()
}

func (fj *FileJar) ExtractCookies(res *http.Response, req *http.Request) (int, error) {
	n, err := fj.jar.ExtractCookies(res, req)
	if len(res.Header.Values("Set-Cookie")) == 0 {
		return n, err
	}
	if saveErr := fj.Save(); saveErr != nil {
		return n, saveErr
	}
	return n, err
}

func (fj *FileJar) Remove(domain, path, name string) (int, error) {
	return fj.persist(fj.jar.Remove(domain, path, name))
}

func (fj *FileJar) Clear(domain, path, name string) (int, error) {
	return fj.persist(fj.jar.Clear(domain, path, name))
}

func (fj *FileJar) RemoveExpired() (int, error) {
	return fj.persist(fj.jar.RemoveExpired())
}

func (fj *FileJar) RemoveTemporary() (int, error) {
	return fj.persist(fj.jar.RemoveTemporary())
}

func (fj *FileJar) persist(n int) (int, error) {
	if n == 0 {
		return 0, nil
	}
	return n, fj.Save()
}

func (fj *FileJar) All(f Filter) []Cookie {
	return fj.jar.All(f)
}

func (fj *FileJar) Len() int {
	return fj.jar.Len()
}

func (fj *FileJar) Matching(u *url.URL) []Cookie {
	return fj.jar.Matching(u)
}

func (fj *FileJar) AddCookieHeader(req *http.Request) {
	fj.jar.AddCookieHeader(req)
}

// SetCookies implements http.CookieJar. Persistence failures are logged,
// since the interface has no error return.
func (fj *FileJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	fj.jar.SetCookies(u, cookies)
	if err := fj.Save(); err != nil {
		log.Error().Err(err).Msg("Could not persist cookie jar")
	}
}

func (fj *FileJar) Cookies(u *url.URL) []*http.Cookie {
	return fj.jar.Cookies(u)
}

// Watch reloads the jar whenever another process rewrites the file.
// It blocks until the context is done.
func (fj *FileJar) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// watch the directory, the file itself is replaced on every save
	if err := watcher.Add(filepath.Dir(fj.path)); err != nil {
		return err
	}
	name := filepath.Clean(fj.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := fj.load(); err != nil {
					log.Warn().Err(err).Str("path", fj.path).Msg("Could not reload cookie jar")
					continue
				}
				log.Debug().Str("path", fj.path).Int("cookies", fj.jar.Len()).Msg("Reloaded cookie jar")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Cookie jar watcher error")
		}
	}
}
