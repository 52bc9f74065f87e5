package job

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/openflock/flockbase/store"
	"github.com/openflock/flockbase/twitter"
	Logger "github.com/openflock/flockbase/utils/log"
)

// archivePage writes one fetched page to the raw archive. Archiving is best
// effort by contract: failures are logged and never fail the job.
func (c Config) archivePage(kind, target string, asOf time.Time, pageNo int, payload interface{}) {
	if c.Archive == nil {
		return
	}
	key := fmt.Sprintf("%s/%s/%d/%d.json", kind, target, asOf.Unix(), pageNo)
	data, err := json.Marshal(payload)
	if err == nil {
		err = c.Archive.Put(key, data)
	}
	if err != nil {
		Logger.Log.WithField("key", key).Warnln("cannot archive page:", err)
	}
}

// rawTweets collects the verbatim api payloads of a tweet page, which is
// what the archive stores.
func rawTweets(tweets []twitter.Tweet) []json.RawMessage {
	raws := make([]json.RawMessage, 0, len(tweets))
	for i := range tweets {
		raws = append(raws, tweets[i].Raw)
	}
	return raws
}

func rawUsers(users []twitter.User) []json.RawMessage {
	raws := make([]json.RawMessage, 0, len(users))
	for i := range users {
		raws = append(raws, users[i].Raw)
	}
	return raws
}

// pageStream regroups a pager's network pages into batches of batchSize ids
// for the streaming reconcilers. The endpoint keeps its own page size on the
// wire; batchSize only controls how many ids reach the database per write.
// Every network page is handed to observe as it arrives, before regrouping.
type pageStream struct {
	inner     store.IDPager
	batchSize int
	observe   func(pageNo int, ids []int64)

	buf    []int64
	batch  []int64
	pageNo int
	done   bool
}

func newPageStream(inner store.IDPager, batchSize int, observe func(pageNo int, ids []int64)) *pageStream {
	return &pageStream{inner: inner, batchSize: batchSize, observe: observe}
}

func (p *pageStream) Next() bool {
	for !p.done && (p.batchSize <= 0 || len(p.buf) < p.batchSize) {
		if !p.inner.Next() {
			p.done = true
			break
		}
		ids := p.inner.Ids()
		if p.observe != nil {
			p.observe(p.pageNo, ids)
		}
		p.pageNo++
		p.buf = append(p.buf, ids...)
		if p.batchSize <= 0 {
			break
		}
	}
	if len(p.buf) == 0 {
		return false
	}
	n := len(p.buf)
	if p.batchSize > 0 && n > p.batchSize {
		n = p.batchSize
	}
	p.batch, p.buf = p.buf[:n], p.buf[n:]
	return true
}

func (p *pageStream) Ids() []int64 {
	return p.batch
}

func (p *pageStream) Err() error {
	return p.inner.Err()
}
