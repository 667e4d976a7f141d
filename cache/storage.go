package cache

import (
	"net/http"
	"sync"
	"time"

	cachekey "github.com/always-cache/cachejar/pkg/cache-key"
	serializer "github.com/always-cache/cachejar/pkg/response-serializer"
	"github.com/always-cache/cachejar/rfc9111"
	"github.com/always-cache/cachejar/rfc9211"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
)

// DefaultTTL is used for responses that carry no max-age.
const DefaultTTL = time.Hour

// PurgeMethods are the methods a URL purge removes entries for.
var PurgeMethods = []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodDelete}

// Entry is one stored response variant.
type Entry = serializer.Entry

type StorageConfig struct {
	// Keyer derives manifest and body keys, the zero value uses the default prefix without filter.
	Keyer cachekey.CacheKeyer
	// DefaultTTL applies when a response has no max-age, DefaultTTL if zero.
	DefaultTTL time.Duration
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Storage keeps responses in a provider as manifests of variants per request key,
// with bodies stored separately by content.
type Storage struct {
	provider   CacheProvider
	keyer      cachekey.CacheKeyer
	defaultTTL time.Duration
	now        func() time.Time
	mutex      sync.RWMutex
}

func NewStorage(provider CacheProvider, config StorageConfig) *Storage {
	if config.Keyer.Prefix == "" {
		config.Keyer = cachekey.NewCacheKeyer("", config.Keyer.Filter)
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = DefaultTTL
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	return &Storage{
		provider:   provider,
		keyer:      config.Keyer,
		defaultTTL: config.DefaultTTL,
		now:        config.Clock,
	}
}

// Keyer returns the keyer used for manifest keys.
func (s *Storage) Keyer() cachekey.CacheKeyer {
	return s.keyer
}

// DefaultTTL returns the configured fallback lifetime.
func (s *Storage) DefaultTTL() time.Duration {
	return s.defaultTTL
}

// Fetch returns the stored response for the request, or nil on a miss.
// An expired entry, or one whose body is gone, is removed from its manifest on the way.
func (s *Storage) Fetch(req *http.Request) (*http.Response, error) {
	res, _, err := s.Lookup(req)
	return res, err
}

// Lookup is Fetch that also tells why nothing was found.
func (s *Storage) Lookup(req *http.Request) (*http.Response, rfc9211.FwdReason, error) {
	key := s.keyer.Key(req)

	s.mutex.RLock()
	entries, err := s.manifest(key)
	if err != nil {
		s.mutex.RUnlock()
		return nil, rfc9211.FwdMiss, err
	}
	if len(entries) == 0 {
		s.mutex.RUnlock()
		log.Trace().Str("key", key).Msg("No manifest for key")
		return nil, rfc9211.FwdUriMiss, nil
	}

	index := -1
	for i, e := range entries {
		if rfc9111.VaryMatches(e.ResponseHeader, e.RequestHeader, req.Header) {
			index = i
			break
		}
	}
	if index < 0 {
		s.mutex.RUnlock()
		log.Trace().Str("key", key).Msg("No variant matches request")
		return nil, rfc9211.FwdVaryMiss, nil
	}
	entry := entries[index]

	if entry.IsExpired(s.now()) {
		s.mutex.RUnlock()
		log.Trace().Str("key", key).Time("expires", entry.ExpiresAt()).Msg("Dropping expired entry")
		return nil, rfc9211.FwdStale, s.dropEntry(key, entry)
	}

	var body []byte
	if entry.BodyKey != "" {
		var found bool
		body, found, err = s.provider.Get(entry.BodyKey)
		if err != nil {
			s.mutex.RUnlock()
			return nil, rfc9211.FwdMiss, &StoreError{Op: "get", Key: entry.BodyKey, Err: err}
		}
		if !found {
			s.mutex.RUnlock()
			log.Trace().Str("key", key).Str("body", entry.BodyKey).Msg("Dropping entry with missing body")
			return nil, rfc9211.FwdMiss, s.dropEntry(key, entry)
		}
	}
	s.mutex.RUnlock()

	return serializer.EntryToResponse(entry, body, req), "", nil
}

// Cache stores the response for the request.
// The body is read and replaced, so the caller can still consume it.
// The stored entry supersedes entries of the same variant.
func (s *Storage) Cache(req *http.Request, res *http.Response) error {
	key := s.keyer.Key(req)
	now := s.now()
	ttl := s.TTL(rfc9111.ResponseCacheControl(res))

	body, err := serializer.ReadBody(res)
	if err != nil {
		return err
	}

	header := rfc9111.PersistableHeader(res.Header)
	if header.Get("Date") == "" {
		header.Set("Date", rfc9111.FormatHttpDate(now))
	}
	entry := Entry{
		RequestHeader:  rfc9111.NominatedHeader(header, req.Header),
		ResponseHeader: header,
		StatusCode:     res.StatusCode,
		Expires:        now.Add(ttl).Unix(),
	}
	if len(body) > 0 {
		entry.BodyKey = s.keyer.BodyKey(req.URL.String(), body)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	entries, err := s.manifest(key)
	if err != nil {
		return err
	}

	kept := []Entry{entry}
	var dropped []Entry
	signature := rfc9111.VarySignature(entry.ResponseHeader, entry.RequestHeader)
	for _, e := range entries {
		switch {
		case e.IsExpired(now):
			dropped = append(dropped, e)
		case e.ResponseHeader.Get("Vary") == entry.ResponseHeader.Get("Vary") &&
			rfc9111.VarySignature(e.ResponseHeader, e.RequestHeader) == signature:
			dropped = append(dropped, e)
		default:
			kept = append(kept, e)
		}
	}

	if entry.BodyKey != "" {
		if err := s.provider.Put(entry.BodyKey, ttl, body); err != nil {
			return &StoreError{Op: "put", Key: entry.BodyKey, Err: err}
		}
	}
	if err := s.saveManifest(key, kept); err != nil {
		return err
	}
	log.Trace().Str("key", key).Dur("ttl", ttl).Int("variants", len(kept)).Msg("Stored response")
	return s.purgeBodies(dropped, kept)
}

// TTL returns how long a response with the given directives is kept.
// It is max-age, widened by stale-if-error: an argument adds that many seconds,
// a bare directive doubles it. Without either the default applies.
func (s *Storage) TTL(cc rfc9111.CacheControl) time.Duration {
	ttl, _ := cc.MaxAge()
	if limit, unlimited, present := cc.StaleIfError(); present {
		if unlimited {
			ttl += ttl
		} else {
			ttl += limit
		}
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	return ttl
}

// Delete removes every stored variant for the request together with their bodies.
func (s *Storage) Delete(req *http.Request) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.deleteKey(s.keyer.Key(req))
}

// Purge removes the stored responses of a URL for all PurgeMethods.
func (s *Storage) Purge(url string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var result *multierror.Error
	for _, method := range PurgeMethods {
		key, err := s.keyer.URLKey(method, url)
		if err != nil {
			return err
		}
		if err := s.deleteKey(key); err != nil {
			result = multierror.Append(result, err)
		}
	}
	log.Debug().Str("url", url).Msg("Purged URL")
	return result.ErrorOrNil()
}

func (s *Storage) deleteKey(key string) error {
	entries, err := s.manifest(key)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	var result *multierror.Error
	if err := s.purgeBodies(entries, nil); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.provider.Purge(key); err != nil {
		result = multierror.Append(result, &StoreError{Op: "purge", Key: key, Err: err})
	}
	log.Trace().Str("key", key).Int("variants", len(entries)).Msg("Deleted manifest")
	return result.ErrorOrNil()
}

// dropEntry removes one entry from its manifest, the manifest is reloaded under the write lock
// as another writer may have changed it.
func (s *Storage) dropEntry(key string, entry Entry) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entries, err := s.manifest(key)
	if err != nil {
		return err
	}
	kept := make([]Entry, 0, len(entries))
	var dropped []Entry
	for _, e := range entries {
		if sameEntry(e, entry) {
			dropped = append(dropped, e)
		} else {
			kept = append(kept, e)
		}
	}
	if len(dropped) == 0 {
		return nil
	}
	if len(kept) == 0 {
		if err := s.provider.Purge(key); err != nil {
			return &StoreError{Op: "purge", Key: key, Err: err}
		}
	} else if err := s.saveManifest(key, kept); err != nil {
		return err
	}
	return s.purgeBodies(dropped, kept)
}

// manifest loads the entries under a key. A missing or undecodable manifest has no entries.
func (s *Storage) manifest(key string) ([]Entry, error) {
	b, found, err := s.provider.Get(key)
	if err != nil {
		return nil, &StoreError{Op: "get", Key: key, Err: err}
	}
	if !found {
		return nil, nil
	}
	entries, err := serializer.BytesToManifest(b)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Ignoring unreadable manifest")
		return nil, nil
	}
	return entries, nil
}

// saveManifest stores the entries for as long as the longest living one.
func (s *Storage) saveManifest(key string, entries []Entry) error {
	b, err := serializer.ManifestToBytes(entries)
	if err != nil {
		return err
	}
	var ttl time.Duration
	now := s.now()
	for _, e := range entries {
		if d := e.ExpiresAt().Sub(now); d > ttl {
			ttl = d
		}
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := s.provider.Put(key, ttl, b); err != nil {
		return &StoreError{Op: "put", Key: key, Err: err}
	}
	return nil
}

// purgeBodies removes the bodies of dropped entries that no kept entry shares.
func (s *Storage) purgeBodies(dropped []Entry, kept []Entry) error {
	inUse := make(map[string]bool, len(kept))
	for _, e := range kept {
		inUse[e.BodyKey] = true
	}
	var result *multierror.Error
	for _, e := range dropped {
		if e.BodyKey == "" || inUse[e.BodyKey] {
			continue
		}
		inUse[e.BodyKey] = true
		if err := s.provider.Purge(e.BodyKey); err != nil {
			result = multierror.Append(result, &StoreError{Op: "purge", Key: e.BodyKey, Err: err})
		}
	}
	return result.ErrorOrNil()
}

func sameEntry(a, b Entry) bool {
	return a.Expires == b.Expires &&
		a.StatusCode == b.StatusCode &&
		a.BodyKey == b.BodyKey &&
		rfc9111.VarySignature(a.ResponseHeader, a.RequestHeader) == rfc9111.VarySignature(b.ResponseHeader, b.RequestHeader)
}
