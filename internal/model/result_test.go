package model

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelResult_ModelURL(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"glb first", `{"model_urls":{"fbx":"https://a/x.fbx","gltf":"https://a/x.gltf","glb":"https://a/x.glb"}}`, "https://a/x.glb"},
		{"gltf when no glb", `{"model_urls":{"fbx":"https://a/x.fbx","gltf":"https://a/x.gltf"}}`, "https://a/x.gltf"},
		{"any gltf-family value", `{"model_urls":{"fbx":"https://a/x.fbx","other":"https://a/y.glb?sig=1"}}`, "https://a/y.glb?sig=1"},
		{"output list", `{"model_outputs":[{"format":"obj","url":"https://a/x.obj"},{"format":"glb","url":"https://a/z.glb"}]}`, "https://a/z.glb"},
		{"nothing usable", `{"model_urls":{"fbx":"https://a/x.fbx"}}`, ""},
		{"empty", ``, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseModelResult(json.RawMessage(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.ModelURL())
		})
	}
}

func TestModelResult_NilIsEmpty(t *testing.T) {
	var r *ModelResult
	assert.Empty(t, r.ModelURL())
	assert.Empty(t, r.DownloadPath())
}

func TestParseModelResult_Invalid(t *testing.T) {
	_, err := ParseModelResult(json.RawMessage(`[1,2`))
	assert.Error(t, err)
}

func TestModelExtension(t *testing.T) {
	assert.Equal(t, ".gltf", ModelExtension("https://a/x.gltf?token=1"))
	assert.Equal(t, ".glb", ModelExtension("https://a/x.glb"))
	assert.Equal(t, ".glb", ModelExtension("https://a/x"))

	r := &ModelResult{ModelURLs: map[string]string{"gltf": "https://a/x.gltf"}}
	assert.Equal(t, ".gltf", r.Extension())
}

func TestAssetURLRoundTrip(t *testing.T) {
	u := "https://assets.meshy.ai/tasks/abc/output/model.glb?Expires=1&Signature=x+y/z"
	r := &ModelResult{ModelURLs: map[string]string{"glb": u}}
	assert.Equal(t, "/api/model/download/"+EncodeAssetURL(u), r.DownloadPath())

	got, err := DecodeAssetURL(EncodeAssetURL(u))
	require.NoError(t, err)
	assert.Equal(t, u, got)

	got, err = DecodeAssetURL(base64.StdEncoding.EncodeToString([]byte(u)))
	require.NoError(t, err)
	assert.Equal(t, u, got)

	_, err = DecodeAssetURL("%%%")
	assert.Error(t, err)
}
