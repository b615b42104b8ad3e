package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/mmcdole/gofeed"
	log "gopkg.in/inconshreveable/log15.v2"
)

const (
	feedAcceptHeader = "application/rss+xml, application/rdf+xml, application/atom+xml, " +
		"application/xml;q=0.9, text/xml;q=0.8, text/*;q=0.7, application/json;q=0.5"
	inlineParseLimit = 64 << 10 // bodies below this parse on the calling goroutine
	feedMaxBytes     = 8 << 20
)

type Enclosure struct {
	URL    string
	Type   string
	Length int64
}

type FeedEntry struct {
	GUID      string
	Link      string
	Title     string
	Author    string
	Content   string
	Summary   string
	Published time.Time
	Media     []Enclosure
}

type ParsedFeed struct {
	Title   string
	Link    string
	Updated time.Time
	Entries []FeedEntry
}

// WebFeed is the outcome of one conditional fetch-and-parse round. RSS is nil
// on 304 and on every failure; Err carries the in-band reason.
type WebFeed struct {
	URL    string
	OriURL string
	Status int
	Reason string
	Header http.Header

	PermanentRedirect bool
	RSS               *ParsedFeed
	Err               error
}

type parseJob struct {
	body  []byte
	reply chan parseReply
}

type parseReply struct {
	feed *gofeed.Feed
	err  error
}

// FeedParser fetches raw documents through the Fetcher and parses them. Small
// bodies are parsed inline; larger ones are handed to a fixed worker pool so
// a burst of heavyweight feeds cannot monopolize the submitting goroutines.
type FeedParser struct {
	fetcher *Fetcher
	logger  log.Logger
	jobs    chan parseJob
}

func NewFeedParser(fetcher *Fetcher, logger log.Logger) *FeedParser {
	workers := runtime.NumCPU() - 1
	if workers < 1 {
		workers = 1
	}
	p := &FeedParser{
		fetcher: fetcher,
		logger:  logger.New("module", "parser"),
		jobs:    make(chan parseJob),
	}
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *FeedParser) worker() {
	parser := gofeed.NewParser()
	for job := range p.jobs {
		feed, err := parser.Parse(bytes.NewReader(job.body))
		job.reply <- parseReply{feed: feed, err: err}
	}
}

func (p *FeedParser) parse(ctx context.Context, body []byte) (*gofeed.Feed, error) {
	if len(body) < inlineParseLimit {
		return gofeed.NewParser().Parse(bytes.NewReader(body))
	}
	job := parseJob{body: body, reply: make(chan parseReply, 1)}
	select {
	case p.jobs <- job:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-job.reply:
		return r.feed, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// FeedGet performs one conditional fetch of url and parses the result.
func (p *FeedParser) FeedGet(ctx context.Context, url string, headers map[string]string) *WebFeed {
	wf := &WebFeed{URL: url, OriURL: url}

	merged := map[string]string{"Accept": feedAcceptHeader}
	for k, v := range headers {
		merged[k] = v
	}

	res, err := p.fetcher.Get(ctx, url, FetchOptions{
		Headers:  merged,
		MaxBytes: feedMaxBytes,
	})
	if err != nil {
		wf.Err = err
		var ffe *FeedFetchError
		if errors.As(err, &ffe) && ffe.Kind == FetchErrStatusCode {
			wf.Status = ffe.Status
			wf.Reason = ffe.Reason
		}
		return wf
	}

	wf.URL = res.URL
	wf.Status = res.Status
	wf.Reason = res.Reason
	wf.Header = res.Header
	wf.PermanentRedirect = res.PermanentRedirect

	// Some upstream caches answer 200 with an empty body where they mean
	// "not modified".
	if wf.Status == http.StatusOK && len(res.Body) == 0 {
		wf.Status = http.StatusNotModified
	}

	switch {
	case wf.Status == http.StatusNotModified:
		return wf
	case wf.Status != http.StatusOK:
		wf.Err = &FeedFetchError{Kind: FetchErrStatusCode, Status: wf.Status, Reason: wf.Reason}
		return wf
	}

	raw, err := p.parse(ctx, res.Body)
	if err != nil {
		wf.Err = &FeedFetchError{Kind: FetchErrFeedInvalid, Err: err}
		return wf
	}

	parsed := convertFeed(raw)
	if parsed.Title == "" && len(parsed.Entries) == 0 && parsed.Link == "" && parsed.Updated.IsZero() {
		wf.Err = &FeedFetchError{Kind: FetchErrFeedInvalid, Reason: "no usable feed content"}
		return wf
	}
	if parsed.Title == "" {
		parsed.Title = wf.URL
	}

	wf.RSS = parsed
	return wf
}

func convertFeed(raw *gofeed.Feed) *ParsedFeed {
	parsed := &ParsedFeed{
		Title: raw.Title,
		Link:  raw.Link,
	}
	if raw.UpdatedParsed != nil {
		parsed.Updated = *raw.UpdatedParsed
	} else if raw.PublishedParsed != nil {
		parsed.Updated = *raw.PublishedParsed
	}

	parsed.Entries = make([]FeedEntry, 0, len(raw.Items))
	for _, it := range raw.Items {
		e := FeedEntry{
			GUID:    it.GUID,
			Link:    it.Link,
			Title:   it.Title,
			Content: it.Content,
			Summary: it.Description,
		}
		if len(it.Authors) > 0 {
			e.Author = it.Authors[0].Name
		}
		if it.PublishedParsed != nil {
			e.Published = *it.PublishedParsed
		} else if it.UpdatedParsed != nil {
			e.Published = *it.UpdatedParsed
		}
		for _, enc := range it.Enclosures {
			var length int64
			if enc.Length != "" {
				length = parseInt64(enc.Length)
			}
			e.Media = append(e.Media, Enclosure{URL: enc.URL, Type: enc.Type, Length: length})
		}
		parsed.Entries = append(parsed.Entries, e)
	}
	return parsed
}

func parseInt64(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
