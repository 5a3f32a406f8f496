package authorize

import (
	"bytes"
	"html/template"
	"net/url"
	"sort"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-oidc-provider/oauth2"
)

// ResponseMode encodes response parameters into a deliverable: a 303
// redirect target for query and fragment, an auto-submitting HTML form
// for form_post.
type ResponseMode interface {
	Name() oauth2.ResponseModeType
	Build(redirectURI string, params map[string]string) (*Response, error)
}

// QueryMode delivers parameters in the redirect URI's query string.
type QueryMode struct{}

func (QueryMode) Name() oauth2.ResponseModeType { return oauth2.QueryResponseMode }

func (QueryMode) Build(redirectURI string, params map[string]string) (*Response, error) {
	target, err := url.Parse(redirectURI)
	if err != nil {
		return nil, errors.Wrap(err, "[QueryMode.Build] parse redirect URI")
	}
	query := target.Query()
	for k, v := range params {
		query.Set(k, v)
	}
	target.RawQuery = query.Encode()
	return &Response{Kind: ResponseRedirect, Location: target.String()}, nil
}

// FragmentMode delivers parameters in the URI fragment, keeping them
// away from servers and logs.
type FragmentMode struct{}

func (FragmentMode) Name() oauth2.ResponseModeType { return oauth2.FragmentResponseMode }

func (FragmentMode) Build(redirectURI string, params map[string]string) (*Response, error) {
	target, err := url.Parse(redirectURI)
	if err != nil {
		return nil, errors.Wrap(err, "[FragmentMode.Build] parse redirect URI")
	}
	fragment := url.Values{}
	for k, v := range params {
		fragment.Set(k, v)
	}
	target.Fragment = ""
	return &Response{Kind: ResponseRedirect, Location: target.String() + "#" + fragment.Encode()}, nil
}

// formPostTemplate renders the self-submitting form per the OAuth 2.0
// Form Post Response Mode draft.
var formPostTemplate = template.Must(template.New("form_post").Parse(`<!DOCTYPE html>
<html>
<head><title>Authorization Response</title></head>
<body onload="document.forms[0].submit()">
<form method="post" action="{{.Action}}">
{{- range .Params}}
<input type="hidden" name="{{.Name}}" value="{{.Value}}"/>
{{- end}}
<noscript><button type="submit">Continue</button></noscript>
</form>
</body>
</html>
`))

// FormPostMode delivers parameters via an auto-submitting HTML form.
type FormPostMode struct{}

func (FormPostMode) Name() oauth2.ResponseModeType { return oauth2.FormPostResponseMode }

func (FormPostMode) Build(redirectURI string, params map[string]string) (*Response, error) {
	type field struct{ Name, Value string }
	fields := make([]field, 0, len(params))
	for k, v := range params {
		fields = append(fields, field{Name: k, Value: v})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })

	var body bytes.Buffer
	err := formPostTemplate.Execute(&body, struct {
		Action string
		Params []field
	}{Action: redirectURI, Params: fields})
	if err != nil {
		return nil, errors.Wrap(err, "[FormPostMode.Build] render form")
	}
	return &Response{Kind: ResponseFormPost, HTML: body.String()}, nil
}

// ModeRegistry is the immutable response-mode name map.
type ModeRegistry struct {
	modes map[oauth2.ResponseModeType]ResponseMode
}

// NewModeRegistry registers modes.
func NewModeRegistry(modes ...ResponseMode) *ModeRegistry {
	r := &ModeRegistry{modes: make(map[oauth2.ResponseModeType]ResponseMode)}
	for _, m := range modes {
		r.modes[m.Name()] = m
	}
	return r
}

// Get resolves a mode by name.
func (r *ModeRegistry) Get(name oauth2.ResponseModeType) (ResponseMode, bool) {
	m, ok := r.modes[name]
	return m, ok
}
