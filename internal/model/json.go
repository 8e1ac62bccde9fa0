package model

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"

	"go.uber.org/zap"
)

// jsonFile mirrors the Simple Repository API's JSON file object, using
// its canonical (hyphenated) field names.
type jsonFile struct {
	Filename       string            `json:"filename"`
	URL            string            `json:"url"`
	Hashes         map[string]string `json:"hashes,omitempty"`
	RequiresPython string            `json:"requires-python,omitempty"`
	CoreMetadata   json.RawMessage   `json:"core-metadata,omitempty"`
	DistInfoMeta   json.RawMessage   `json:"dist-info-metadata,omitempty"`
	GPGSig         *bool             `json:"gpg-sig,omitempty"`
	Yanked         json.RawMessage   `json:"yanked,omitempty"`
}

type jsonListing struct {
	Meta  jsonMeta   `json:"meta"`
	Name  string     `json:"name,omitempty"`
	Files []jsonFile `json:"files"`
}

type jsonMeta struct {
	APIVersion string `json:"api-version"`
}

type jsonProjectList struct {
	Meta     jsonMeta      `json:"meta"`
	Projects []jsonProject `json:"projects"`
}

type jsonProject struct {
	Name string `json:"name"`
}

// ParseJSON decodes a Simple Repository API JSON file-listing response
// body into File records. requestURL resolves any relative file URLs.
// A malformed core-metadata value is logged to logger and treated as
// present-without-hashes rather than failing the whole parse; logger
// may be nil.
func ParseJSON(body io.Reader, requestURL string, logger *zap.Logger) ([]*File, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, err := url.Parse(requestURL)
	if err != nil {
		return nil, fmt.Errorf("parsing request URL: %w", err)
	}

	var listing jsonListing
	if err := json.NewDecoder(body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decoding JSON file listing: %w", err)
	}

	files := make([]*File, 0, len(listing.Files))
	for _, jf := range listing.Files {
		resolved, err := base.Parse(jf.URL)
		if err != nil {
			return nil, fmt.Errorf("resolving file URL %q: %w", jf.URL, err)
		}

		coreMeta := jf.CoreMetadata
		if len(coreMeta) == 0 {
			coreMeta = jf.DistInfoMeta
		}

		var yanked *YankedState
		if jf.Yanked != nil {
			yanked, err = decodeYanked(jf.Yanked)
			if err != nil {
				return nil, err
			}
		}

		cm := decodeCoreMetadata(coreMeta, logger)

		files = append(files, &File{
			Name:           jf.Filename,
			URL:            resolved.String(),
			Hashes:         jf.Hashes,
			RequiresPython: jf.RequiresPython,
			CoreMetadata:   cm,
			GPGSig:         jf.GPGSig,
			Yanked:         yanked,
		})
	}
	return files, nil
}

// ParseProjectListJSON decodes a Simple Repository API JSON project-listing
// response body into normalized project name -> relative URL pairs.
func ParseProjectListJSON(body io.Reader) (map[string]string, error) {
	var listing jsonProjectList
	if err := json.NewDecoder(body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decoding JSON project listing: %w", err)
	}
	out := make(map[string]string, len(listing.Projects))
	for _, p := range listing.Projects {
		name := NormalizeName(p.Name)
		out[name] = name + "/"
	}
	return out, nil
}

// decodeCoreMetadata interprets a core-metadata JSON value: a bool means
// present without hashes, an object names hashes by algorithm, and
// anything else is logged and treated as present-without-hashes (the
// most permissive reading) rather than failing the whole listing.
func decodeCoreMetadata(raw json.RawMessage, logger *zap.Logger) *CoreMetadata {
	if len(raw) == 0 {
		return nil
	}
	var asBool bool
	if err := json.Unmarshal(raw, &asBool); err == nil {
		return &CoreMetadata{}
	}
	var asHashes map[string]string
	if err := json.Unmarshal(raw, &asHashes); err != nil {
		logger.Warn("malformed core-metadata value, treating as present without hashes", zap.ByteString("value", raw))
		return &CoreMetadata{}
	}
	return &CoreMetadata{Hashes: asHashes}
}

func decodeYanked(raw json.RawMessage) (*YankedState, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var asBool bool
	if err := json.Unmarshal(raw, &asBool); err == nil {
		if !asBool {
			return nil, nil
		}
		return &YankedState{}, nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err != nil {
		return nil, fmt.Errorf("decoding yanked: %w", err)
	}
	return &YankedState{Reason: asString}, nil
}

// SerializeJSON writes a Simple Repository API JSON file listing. When
// forDownstream is true, each file's "url" is replaced with the filename
// itself, so the installer re-enters the proxy (and its cache) for the
// actual download instead of going straight to the upstream origin.
func SerializeJSON(w io.Writer, projectName string, files []*File, forDownstream bool) error {
	listing := jsonListing{
		Meta:  jsonMeta{APIVersion: "1.0"},
		Name:  projectName,
		Files: make([]jsonFile, 0, len(files)),
	}
	for _, f := range files {
		jf := jsonFile{
			Filename:       f.Name,
			URL:            f.URL,
			Hashes:         f.Hashes,
			RequiresPython: f.RequiresPython,
			GPGSig:         f.GPGSig,
		}
		if forDownstream {
			jf.URL = f.Name
		}
		if f.CoreMetadata != nil {
			raw, err := encodeCoreMetadata(f.CoreMetadata)
			if err != nil {
				return err
			}
			jf.CoreMetadata = raw
		}
		if f.Yanked != nil {
			raw, err := encodeYanked(f.Yanked)
			if err != nil {
				return err
			}
			jf.Yanked = raw
		}
		listing.Files = append(listing.Files, jf)
	}
	return json.NewEncoder(w).Encode(listing)
}

// SerializeProjectListJSON writes a Simple Repository API JSON project
// listing for the given normalized project names.
func SerializeProjectListJSON(w io.Writer, names []string) error {
	listing := jsonProjectList{
		Meta:     jsonMeta{APIVersion: "1.0"},
		Projects: make([]jsonProject, 0, len(names)),
	}
	for _, n := range names {
		listing.Projects = append(listing.Projects, jsonProject{Name: n})
	}
	return json.NewEncoder(w).Encode(listing)
}

func encodeCoreMetadata(cm *CoreMetadata) (json.RawMessage, error) {
	if len(cm.Hashes) == 0 {
		return json.Marshal(true)
	}
	return json.Marshal(cm.Hashes)
}

func encodeYanked(y *YankedState) (json.RawMessage, error) {
	if y.Reason == "" {
		return json.Marshal(true)
	}
	return json.Marshal(y.Reason)
}
