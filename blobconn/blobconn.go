// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package blobconn is a client connector for blob://bucket/key
// references, backed by go-cloud blob buckets.  GET and HEAD read a
// blob, PUT writes one, DELETE removes it.  A blob's media type,
// language and character set come from the extensions of its key.
package blobconn

import (
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/diffeo/go-restlet/connector"
	"github.com/diffeo/go-restlet/metadata"
	"github.com/diffeo/go-restlet/representation"
	"github.com/diffeo/go-restlet/restlet"
	"github.com/google/go-cloud/blob"
	"github.com/google/go-cloud/blob/fileblob"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Protocols is the protocol set of the helper.
var Protocols = []restlet.Protocol{restlet.BLOB}

// Register adds the blob client helper to a registry.
func Register(registry *connector.Registry) {
	registry.RegisterClient(Protocols, NewClientHelper)
}

// allowed is the Allow: list of every blob.
var allowed = []restlet.Method{restlet.MethodGet, restlet.MethodHead, restlet.MethodPut, restlet.MethodDelete}

// Options are the parameters of a blob client connector.
type Options struct {
	// Buckets maps bucket names, the authority of a reference, to
	// local directories served with fileblob.
	Buckets map[string]string
}

// ClientHelper reads and writes blobs.
type ClientHelper struct {
	Client   *connector.Client
	Options  Options
	Metadata *metadata.Service

	lock    sync.RWMutex
	buckets map[string]*blob.Bucket
}

// NewClientHelper is the connector.ClientFactory for blobs.
func NewClientHelper(client *connector.Client) (connector.ClientHelper, error) {
	h := &ClientHelper{
		Client:   client,
		Metadata: metadata.NewService(),
		buckets:  make(map[string]*blob.Bucket),
	}
	if err := client.DecodeParameters(&h.Options); err != nil {
		return nil, err
	}
	return h, nil
}

// Protocols returns the blob protocol.
func (h *ClientHelper) Protocols() []restlet.Protocol {
	return Protocols
}

// Start opens the configured directories.
func (h *ClientHelper) Start() error {
	for name, dir := range h.Options.Buckets {
		bucket, err := fileblob.NewBucket(dir)
		if err != nil {
			return errors.Wrapf(err, "opening bucket %q", name)
		}
		h.AddBucket(name, bucket)
	}
	return nil
}

// Stop does nothing.
func (h *ClientHelper) Stop() error {
	return nil
}

// AddBucket serves an already-open bucket under a name.
func (h *ClientHelper) AddBucket(name string, bucket *blob.Bucket) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.buckets[strings.ToLower(name)] = bucket
}

// Bucket returns a named bucket, or nil.
func (h *ClientHelper) Bucket(name string) *blob.Bucket {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return h.buckets[strings.ToLower(name)]
}

// Handle performs a call on one blob.
func (h *ClientHelper) Handle(req *restlet.Request, resp *restlet.Response) {
	ref := req.ResourceRef
	bucket := h.Bucket(ref.HostDomain())
	if bucket == nil {
		resp.SetError(restlet.NewStatusError(restlet.StatusNotFound, "no bucket %q", ref.HostDomain()))
		return
	}
	key, err := url.PathUnescape(strings.TrimPrefix(ref.Path(), "/"))
	if err != nil || key == "" || strings.HasSuffix(key, "/") {
		resp.SetError(restlet.NewStatusError(restlet.StatusBadRequest, "bad blob key %q", ref.Path()))
		return
	}
	log := h.Client.Context.Log().WithFields(logrus.Fields{
		"bucket": ref.HostDomain(),
		"key":    key,
		"method": req.Method,
	})

	switch req.Method {
	case restlet.MethodGet, restlet.MethodHead:
		err = h.read(req, resp, bucket, key)
	case restlet.MethodPut:
		err = h.write(req, resp, bucket, key)
	case restlet.MethodDelete:
		err = bucket.Delete(req.Context(), key)
		if err == nil {
			resp.SetStatus(restlet.StatusNoContent)
		}
	default:
		resp.SetStatus(restlet.StatusMethodNotAllowed)
		resp.AllowedMethods = allowed
		return
	}
	switch {
	case err == nil:
	case blob.IsNotExist(err):
		resp.SetStatus(restlet.StatusNotFound)
	default:
		log.WithError(err).Warn("Blob call failed")
		resp.Status = restlet.StatusConnectorCommunication
		resp.Err = errors.Wrapf(err, "blob %v", key)
	}
}

func (h *ClientHelper) variant(req *restlet.Request) metadata.Variant {
	v := h.Metadata.Variant(req.ResourceRef.Extensions())
	if v.MediaType.IsZero() {
		v.MediaType = metadata.ApplicationOctetStream
	}
	return v
}

func (h *ClientHelper) read(req *restlet.Request, resp *restlet.Response, bucket *blob.Bucket, key string) error {
	r, err := bucket.NewReader(req.Context(), key)
	if err != nil {
		return err
	}
	resp.SetStatus(restlet.StatusOK)
	resp.Entity = representation.NewReader(r, h.variant(req), r.Size())
	return nil
}

// write answers 201 Created for a new blob and 204 No Content for a
// replaced one.
func (h *ClientHelper) write(req *restlet.Request, resp *restlet.Response, bucket *blob.Bucket, key string) error {
	if req.Entity == nil {
		resp.SetError(restlet.NewStatusError(restlet.StatusBadRequest, "PUT needs an entity"))
		return nil
	}
	existed := true
	if r, err := bucket.NewReader(req.Context(), key); err == nil {
		_ = r.Close()
	} else if blob.IsNotExist(err) {
		existed = false
	} else {
		return err
	}

	body, err := req.Entity.Open(req.Context())
	if err != nil {
		return err
	}
	defer body.Close()
	w, err := bucket.NewWriter(req.Context(), key, nil)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	if existed {
		resp.SetStatus(restlet.StatusNoContent)
	} else {
		resp.Redirect(req.ResourceRef.Clone(), restlet.StatusCreated)
	}
	return nil
}
