package server

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/xml"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// verb is a parsed TwiML element.
type verb struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Text     string     `xml:",chardata"`
	Children []verb     `xml:",any"`
}

func (v verb) Name() string { return v.XMLName.Local }

func (v verb) Attr(name string) string {
	for _, a := range v.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// twimlDoc is a parsed voice webhook response.
type twimlDoc struct {
	verbs []verb
}

func parseTwiML(t *testing.T, body string) twimlDoc {
	t.Helper()
	require.True(t, strings.HasPrefix(body, "<?xml"), body)
	var root verb
	require.NoError(t, xml.Unmarshal([]byte(body), &root), body)
	require.Equal(t, "Response", root.Name())
	return twimlDoc{verbs: root.Children}
}

// find returns the first element with the given name, searching Gather
// children too.
func (d twimlDoc) find(name string) (verb, bool) {
	var walk func([]verb) (verb, bool)
	walk = func(vs []verb) (verb, bool) {
		for _, v := range vs {
			if v.Name() == name {
				return v, true
			}
			if got, ok := walk(v.Children); ok {
				return got, true
			}
		}
		return verb{}, false
	}
	return walk(d.verbs)
}

func (d twimlDoc) has(name string) bool {
	_, ok := d.find(name)
	return ok
}

// spoken joins every Say in document order.
func (d twimlDoc) spoken() string {
	var parts []string
	var walk func([]verb)
	walk = func(vs []verb) {
		for _, v := range vs {
			if v.Name() == "Say" {
				parts = append(parts, strings.TrimSpace(v.Text))
			}
			walk(v.Children)
		}
	}
	walk(d.verbs)
	return strings.Join(parts, "\n")
}

// sign computes the X-Twilio-Signature Twilio would send for a form post.
func sign(authToken, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
