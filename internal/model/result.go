package model

import (
	"encoding/base64"
	"encoding/json"
	"sort"
	"strings"
)

// ModelOutput is one entry of the list-shaped output variant
type ModelOutput struct {
	Format string `json:"format"`
	URL    string `json:"url"`
}

// ModelResult is the payload of a succeeded refine task.
// Providers report the model files either as a format→URL map or as a list.
type ModelResult struct {
	ID           string            `json:"id,omitempty"`
	ModelURLs    map[string]string `json:"model_urls,omitempty"`
	ModelOutputs []ModelOutput     `json:"model_outputs,omitempty"`
	ThumbnailURL string            `json:"thumbnail_url,omitempty"`
	TextureURLs  []TextureURLs     `json:"texture_urls,omitempty"`
}

// TextureURLs holds the texture maps of a refined model
type TextureURLs struct {
	BaseColor string `json:"base_color,omitempty"`
}

// ParseModelResult decodes an opaque task result
func ParseModelResult(raw json.RawMessage) (*ModelResult, error) {
	var r ModelResult
	if len(raw) == 0 {
		return &r, nil
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ModelURL returns the glTF-family asset to download, or "" when none fits
func (r *ModelResult) ModelURL() string {
	if r == nil {
		return ""
	}

	if r.ModelURLs != nil {
		if u := r.ModelURLs["glb"]; u != "" {
			return u
		}
		if u := r.ModelURLs["gltf"]; u != "" {
			return u
		}

		keys := make([]string, 0, len(r.ModelURLs))
		for k := range r.ModelURLs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if u := r.ModelURLs[k]; isGLTFFile(u) {
				return u
			}
		}
	}

	for _, format := range []string{"glb", "gltf"} {
		for _, o := range r.ModelOutputs {
			if o.Format == format && o.URL != "" {
				return o.URL
			}
		}
	}

	return ""
}

// Extension returns the file extension of the chosen asset
func (r *ModelResult) Extension() string {
	return ModelExtension(r.ModelURL())
}

// ModelExtension returns ".gltf" for glTF URLs and ".glb" otherwise
func ModelExtension(url string) string {
	if strings.HasSuffix(stripQuery(url), ".gltf") {
		return ".gltf"
	}
	return ".glb"
}

// DownloadPath returns the proxied download path for the chosen asset
func (r *ModelResult) DownloadPath() string {
	u := r.ModelURL()
	if u == "" {
		return ""
	}
	return "/api/model/download/" + EncodeAssetURL(u)
}

// EncodeAssetURL encodes an asset URL into a single path segment
func EncodeAssetURL(url string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(url))
}

// DecodeAssetURL reverses EncodeAssetURL. Padded and standard alphabets are accepted.
func DecodeAssetURL(encoded string) (string, error) {
	trimmed := strings.TrimRight(encoded, "=")
	if b, err := base64.RawURLEncoding.DecodeString(trimmed); err == nil {
		return string(b), nil
	}
	b, err := base64.RawStdEncoding.DecodeString(trimmed)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func isGLTFFile(u string) bool {
	p := stripQuery(u)
	return strings.HasSuffix(p, ".glb") || strings.HasSuffix(p, ".gltf")
}

func stripQuery(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		return u[:i]
	}
	return u
}
