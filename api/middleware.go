package api

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"

	"workboard/domain"
)

var errUnsupportedEncoding = errors.New("unsupported content encoding")

var gzipReaders sync.Pool

// DecodeRequestBody unwraps request bodies sent with a single gzip content
// coding. Identity passes through, any other coding is answered with 415 and
// a corrupt gzip header with 400.
func DecodeRequestBody() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			codings := contentCodings(req.Header.Get(echo.HeaderContentEncoding))
			if len(codings) == 0 {
				return next(c)
			}
			if len(codings) > 1 || codings[0] != "gzip" {
				return errorResponse(c, "decode", fmt.Errorf("%w: %s", errUnsupportedEncoding, strings.Join(codings, ", ")))
			}
			if req.Body == nil {
				return errorResponse(c, "decode", fmt.Errorf("%w: empty gzip body", domain.ErrInvalidInput))
			}

			body, err := newGzipBody(req.Body)
			if err != nil {
				_ = req.Body.Close()
				return errorResponse(c, "decode", fmt.Errorf("%w: invalid gzip body", domain.ErrInvalidInput))
			}
			defer body.Close()
			req.Body = body
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)
			return next(c)
		}
	}
}

// contentCodings lists the codings of a Content-Encoding header in order,
// lower cased and without identity.
func contentCodings(header string) []string {
	var out []string
	for _, enc := range strings.Split(header, ",") {
		enc = strings.ToLower(strings.TrimSpace(enc))
		if enc == "" || enc == "identity" {
			continue
		}
		out = append(out, enc)
	}
	return out
}

// gzipBody reads a gzip stream from the original body. Close returns the
// reader to the pool and closes the original body.
type gzipBody struct {
	zr   *gzip.Reader
	body io.ReadCloser
}

func newGzipBody(body io.ReadCloser) (*gzipBody, error) {
	zr, _ := gzipReaders.Get().(*gzip.Reader)
	if zr == nil {
		var err error
		if zr, err = gzip.NewReader(body); err != nil {
			return nil, err
		}
	} else if err := zr.Reset(body); err != nil {
		gzipReaders.Put(zr)
		return nil, err
	}
	return &gzipBody{zr: zr, body: body}, nil
}

func (g *gzipBody) Read(p []byte) (int, error) {
	if g.zr == nil {
		return 0, io.ErrClosedPipe
	}
	return g.zr.Read(p)
}

func (g *gzipBody) Close() error {
	var err error
	if g.zr != nil {
		err = g.zr.Close()
		gzipReaders.Put(g.zr)
		g.zr = nil
	}
	if g.body != nil {
		if cerr := g.body.Close(); cerr != nil && err == nil {
			err = cerr
		}
		g.body = nil
	}
	return err
}
