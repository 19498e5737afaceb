package davclient

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/xxxsen/davbackup/errs"
)

// Multistatus 为PROPFIND返回的根结构, 解码时不限定namespace前缀,
// ownCloud/Nextcloud使用d:, 其他实现可能使用D:或默认namespace
type Multistatus struct {
	XMLName   xml.Name    `xml:"multistatus"`
	Responses []*Response `xml:"response"`
}

type Response struct {
	Href     string      `xml:"href"`
	Propstat []*Propstat `xml:"propstat"`
}

type Propstat struct {
	Prop   Prop   `xml:"prop"`
	Status string `xml:"status"`
}

type Prop struct {
	DisplayName   string       `xml:"displayname"`
	LastModified  string       `xml:"getlastmodified"`
	ContentLength string       `xml:"getcontentlength"`
	ResourceType  ResourceType `xml:"resourcetype"`
}

type ResourceType struct {
	Collection *struct{} `xml:"collection"`
}

// StatInfo carries the subset of file properties the agent layer needs.
// Modified is normalized to UTC RFC3339 when the server value parses,
// otherwise the raw server string is carried through.
type StatInfo struct {
	Size        int64
	Modified    string
	ModifiedRaw string
}

func decodeMultistatus(raw []byte) (*Multistatus, error) {
	ms := &Multistatus{}
	if err := xml.Unmarshal(raw, ms); err != nil {
		return nil, fmt.Errorf("%w: decode multistatus failed, err:%w", errs.ErrProtocol, err)
	}
	return ms, nil
}

// contentLength returns the merged getcontentlength across propstat
// sections, 0 when absent.
func (r *Response) contentLength() int64 {
	for _, ps := range r.Propstat {
		if len(ps.Prop.ContentLength) == 0 {
			continue
		}
		v, err := strconv.ParseInt(ps.Prop.ContentLength, 10, 64)
		if err != nil {
			continue
		}
		return v
	}
	return 0
}

func (r *Response) lastModified() string {
	for _, ps := range r.Propstat {
		if len(ps.Prop.LastModified) > 0 {
			return strings.TrimSpace(ps.Prop.LastModified)
		}
	}
	return ""
}

// hrefLeaf extracts the last path segment of a response href.
// Returns empty string for the root segment.
func hrefLeaf(href string) string {
	p := href
	decoded := false
	if u, err := url.Parse(href); err == nil {
		p = u.Path // already unescaped
		decoded = true
	}
	p = strings.TrimRight(p, "/")
	if idx := strings.LastIndex(p, "/"); idx >= 0 {
		p = p[idx+1:]
	}
	if decoded {
		return p
	}
	if dec, err := url.PathUnescape(p); err == nil {
		return dec
	}
	return p
}
