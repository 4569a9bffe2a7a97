package storage

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/blobsync/pinner/src/utils/config"
	"github.com/blobsync/pinner/src/utils/logger"

	"github.com/go-resty/resty/v2"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Client talks to an IPFS-style node HTTP API.
type Client struct {
	client *resty.Client
	config *config.Config
	log    *logrus.Entry

	limiter *rate.Limiter

	// Object metadata barely changes, cache it for a moment so the
	// pre-pin check and the timeout estimate don't hit the node twice
	metaSizes *cache.Cache
}

type objectStatResponse struct {
	CumulativeSize uint64 `json:"CumulativeSize"`
}

func NewClient(config *config.Config) (self *Client) {
	self = new(Client)
	self.config = config
	self.log = logger.NewSublogger("storage-client")

	self.limiter = rate.NewLimiter(rate.Limit(config.Storage.RateLimit), 1)
	self.metaSizes = cache.New(config.Storage.MetaCacheTTL, 2*config.Storage.MetaCacheTTL)

	// No client-level timeout, every deadline comes in through the
	// request context. A fixed timeout here would override the adaptive
	// pin timeout and cut off long legitimate transfers.
	self.client = resty.New().
		SetBaseURL(config.Storage.NodeUrl).
		SetHeader("User-Agent", "pinner").
		OnBeforeRequest(self.onRateLimit).
		OnAfterResponse(self.onStatusToError)

	return
}

func (self *Client) onRateLimit(c *resty.Client, req *resty.Request) error {
	return self.limiter.Wait(req.Context())
}

func (self *Client) onStatusToError(c *resty.Client, resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}

	// The node reports double-unpin with a well known message
	body := string(resp.Body())
	if strings.Contains(body, "not pinned") {
		return ErrNotPinned
	}

	if resp.StatusCode() > 399 && resp.StatusCode() < 500 {
		self.log.WithField("status", resp.StatusCode()).
			WithField("resp", body).
			WithField("url", resp.Request.URL).
			Debug("Bad request")
	}
	return fmt.Errorf("unexpected status: %s", resp.Status())
}

func (self *Client) FetchMetaSize(ctx context.Context, address string) (size uint64, err error) {
	if cached, ok := self.metaSizes.Get(address); ok {
		return cached.(uint64), nil
	}

	var out objectStatResponse
	resp, err := self.client.R().
		SetContext(ctx).
		SetQueryParam("arg", address).
		SetResult(&out).
		Post("/api/v0/object/stat")
	if err != nil {
		return
	}
	if resp.StatusCode() != http.StatusOK {
		err = fmt.Errorf("unexpected status: %s", resp.Status())
		return
	}

	size = out.CumulativeSize
	self.metaSizes.Set(address, size, cache.DefaultExpiration)
	return
}

func (self *Client) FetchActualSize(ctx context.Context, address string) (size uint64, err error) {
	// files/stat --with-local measures what was actually retrieved,
	// metadata may undercount for chunked objects
	var out struct {
		CumulativeSize uint64 `json:"CumulativeSize"`
		SizeLocal      uint64 `json:"SizeLocal"`
	}
	resp, err := self.client.R().
		SetContext(ctx).
		SetQueryParam("arg", "/ipfs/"+address).
		SetQueryParam("with-local", "true").
		SetResult(&out).
		Post("/api/v0/files/stat")
	if err != nil {
		return
	}
	if resp.StatusCode() != http.StatusOK {
		err = fmt.Errorf("unexpected status: %s", resp.Status())
		return
	}

	size = out.SizeLocal
	if size == 0 {
		size = out.CumulativeSize
	}
	return
}

func (self *Client) Pin(ctx context.Context, address string) (err error) {
	// Pinning big content takes long, the adaptive timeout comes in
	// through the context and overrides the default client timeout
	_, err = self.client.R().
		SetContext(ctx).
		SetQueryParam("arg", address).
		SetQueryParam("recursive", "true").
		Post("/api/v0/pin/add")
	return
}

func (self *Client) Unpin(ctx context.Context, address string) (err error) {
	_, err = self.client.R().
		SetContext(ctx).
		SetQueryParam("arg", address).
		Post("/api/v0/pin/rm")
	return
}

func (self *Client) Connect(ctx context.Context, addresses []string) (err error) {
	for _, address := range addresses {
		_, err = self.client.R().
			SetContext(ctx).
			SetQueryParam("arg", address).
			Post("/api/v0/swarm/connect")
		if err != nil {
			return
		}
	}
	return
}

func (self *Client) Disconnect(ctx context.Context, addresses []string) (err error) {
	for _, address := range addresses {
		_, err = self.client.R().
			SetContext(ctx).
			SetQueryParam("arg", address).
			Post("/api/v0/swarm/disconnect")
		if err != nil {
			return
		}
	}
	return
}
