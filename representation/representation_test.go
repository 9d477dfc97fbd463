// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package representation

import (
	"context"
	"errors"
	"io"
	"io/ioutil"
	"strings"
	"testing"
	"time"

	"github.com/diffeo/go-restlet/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	rep := NewString("hello", metadata.TextPlain)
	assert.Equal(t, int64(5), rep.Size())
	assert.Equal(t, metadata.UTF8, rep.Variant().CharacterSet)
	assert.False(t, rep.Transient())

	for i := 0; i < 2; i++ {
		text, err := Text(context.Background(), rep)
		assert.NoError(t, err)
		assert.Equal(t, "hello", text)
	}
}

func TestReaderOneShot(t *testing.T) {
	rep := NewReader(ioutil.NopCloser(strings.NewReader("once")), metadata.Variant{MediaType: metadata.TextPlain}, 4)
	assert.True(t, rep.Available())
	text, err := Text(context.Background(), rep)
	assert.NoError(t, err)
	assert.Equal(t, "once", text)
	assert.False(t, rep.Available())
	_, err = rep.Open(context.Background())
	assert.Equal(t, ErrUnavailable, err)
}

func TestWriterProducesContent(t *testing.T) {
	rep := NewWriter(metadata.Variant{MediaType: metadata.TextPlain}, func(ctx context.Context, w io.Writer) error {
		for i := 0; i < 100; i++ {
			if _, err := io.WriteString(w, "x"); err != nil {
				return err
			}
		}
		return nil
	})
	rep.SetBufferChunks(2)
	assert.Equal(t, int64(-1), rep.Size())
	text, err := Text(context.Background(), rep)
	assert.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", 100), text)
}

func TestWriterProducerError(t *testing.T) {
	oops := errors.New("oops")
	rep := NewWriter(metadata.Variant{}, func(ctx context.Context, w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return oops
	})
	data, err := ReadAll(context.Background(), rep)
	assert.Equal(t, oops, err)
	assert.Equal(t, "partial", string(data))
}

func TestWriterCancel(t *testing.T) {
	stopped := make(chan error, 1)
	rep := NewWriter(metadata.Variant{}, func(ctx context.Context, w io.Writer) error {
		for {
			if _, err := io.WriteString(w, "forever"); err != nil {
				stopped <- err
				return err
			}
		}
	})
	rep.SetBufferChunks(0)
	reader, err := rep.Open(context.Background())
	require.NoError(t, err)
	buf := make([]byte, 3)
	_, err = reader.Read(buf)
	assert.NoError(t, err)
	assert.NoError(t, reader.Close())

	select {
	case err := <-stopped:
		assert.Equal(t, context.Canceled, err)
	case <-time.After(5 * time.Second):
		assert.Fail(t, "producer was not cancelled")
	}
	reader.(*pipe).Wait()
}

func TestWriterPanic(t *testing.T) {
	rep := NewWriter(metadata.Variant{}, func(ctx context.Context, w io.Writer) error {
		panic("boom")
	})
	_, err := ReadAll(context.Background(), rep)
	assert.Error(t, err)
}

func TestDispositionFormat(t *testing.T) {
	d := NewAttachment(`my "report" \ 2017.pdf`)
	d.Set(ParamSize, "1024")
	assert.Equal(t, `attachment; filename="my \"report\" \\ 2017.pdf"; size=1024`, d.Format())

	parsed, err := ParseDisposition(d.Format())
	if assert.NoError(t, err) {
		assert.Equal(t, DispositionAttachment, parsed.Type)
		assert.Equal(t, `my "report" \ 2017.pdf`, parsed.Filename())
		assert.Equal(t, "1024", parsed.Get(ParamSize))
	}

	assert.Equal(t, "", (&Disposition{Type: DispositionNone}).Format())
	var none *Disposition
	assert.Equal(t, "", none.Format())
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "none", Describe(nil))
	rep := NewString("x", metadata.TextHTML)
	assert.Equal(t, "text/html", Describe(rep))
}
