package model

import (
	"bytes"
	"strings"
	"testing"
)

func TestJSONRoundTrip(t *testing.T) {
	htmlFiles, err := ParseHTML(strings.NewReader(sampleHTML), "https://index.example.org/simple/numpy/", nil)
	if err != nil {
		t.Fatalf("ParseHTML: %v", err)
	}

	var buf bytes.Buffer
	if err := SerializeJSON(&buf, "numpy", htmlFiles, false); err != nil {
		t.Fatalf("SerializeJSON: %v", err)
	}

	jsonFiles, err := ParseJSON(&buf, "https://index.example.org/simple/numpy/", nil)
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	if len(jsonFiles) != len(htmlFiles) {
		t.Fatalf("file count mismatch: %d != %d", len(jsonFiles), len(htmlFiles))
	}
	for i, hf := range htmlFiles {
		jf := jsonFiles[i]
		if jf.Name != hf.Name || jf.URL != hf.URL {
			t.Errorf("file %d identity changed: %+v != %+v", i, jf, hf)
		}
		if jf.Fragment() != hf.Fragment() {
			t.Errorf("file %d fragment changed: %q != %q", i, jf.Fragment(), hf.Fragment())
		}
		if (jf.Yanked == nil) != (hf.Yanked == nil) {
			t.Errorf("file %d yanked-presence changed: %+v != %+v", i, jf.Yanked, hf.Yanked)
		}
		if jf.Yanked != nil && jf.Yanked.Reason != hf.Yanked.Reason {
			t.Errorf("file %d yanked reason changed: %q != %q", i, jf.Yanked.Reason, hf.Yanked.Reason)
		}
		if (jf.CoreMetadata == nil) != (hf.CoreMetadata == nil) {
			t.Errorf("file %d core-metadata presence changed", i)
		}
	}
}

func TestSerializeJSONForDownstreamSubstitutesURL(t *testing.T) {
	files := []*File{{Name: "numpy-1.23.1.tar.gz", URL: "https://files.example.org/numpy-1.23.1.tar.gz"}}

	var buf bytes.Buffer
	if err := SerializeJSON(&buf, "numpy", files, true); err != nil {
		t.Fatalf("SerializeJSON: %v", err)
	}
	if strings.Contains(buf.String(), "files.example.org") {
		t.Fatalf("expected upstream URL to be replaced with filename, got %s", buf.String())
	}
	if !strings.Contains(buf.String(), `"url":"numpy-1.23.1.tar.gz"`) {
		t.Fatalf("expected url field to equal filename, got %s", buf.String())
	}
}

func TestSerializeJSONNotForDownstreamKeepsURL(t *testing.T) {
	files := []*File{{Name: "numpy-1.23.1.tar.gz", URL: "https://files.example.org/numpy-1.23.1.tar.gz"}}

	var buf bytes.Buffer
	if err := SerializeJSON(&buf, "numpy", files, false); err != nil {
		t.Fatalf("SerializeJSON: %v", err)
	}
	if !strings.Contains(buf.String(), "https://files.example.org/numpy-1.23.1.tar.gz") {
		t.Fatalf("expected upstream URL to be kept, got %s", buf.String())
	}
}

func TestYankedBooleanTrueDecodesToEmptyReason(t *testing.T) {
	body := `{"meta":{"api-version":"1.0"},"files":[{"filename":"a.whl","url":"a.whl","yanked":true}]}`
	files, err := ParseJSON(strings.NewReader(body), "https://index.example.org/simple/a/", nil)
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	if files[0].Yanked == nil || files[0].Yanked.Reason != "" {
		t.Fatalf("expected yanked=true to decode to empty-reason state, got %+v", files[0].Yanked)
	}
}

func TestYankedBooleanFalseDecodesToAbsent(t *testing.T) {
	body := `{"meta":{"api-version":"1.0"},"files":[{"filename":"a.whl","url":"a.whl","yanked":false}]}`
	files, err := ParseJSON(strings.NewReader(body), "https://index.example.org/simple/a/", nil)
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	if files[0].Yanked != nil {
		t.Fatalf("expected yanked=false to decode to absent, got %+v", files[0].Yanked)
	}
}

func TestYankedStringDecodesToReason(t *testing.T) {
	body := `{"meta":{"api-version":"1.0"},"files":[{"filename":"a.whl","url":"a.whl","yanked":"security issue"}]}`
	files, err := ParseJSON(strings.NewReader(body), "https://index.example.org/simple/a/", nil)
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	if files[0].Yanked == nil || files[0].Yanked.Reason != "security issue" {
		t.Fatalf("expected yanked reason to be preserved, got %+v", files[0].Yanked)
	}
}

func TestParseProjectListJSONNormalizesNames(t *testing.T) {
	body := `{"meta":{"api-version":"1.0"},"projects":[{"name":"Foo_Bar.Baz"},{"name":"already-normal"}]}`
	names, err := ParseProjectListJSON(strings.NewReader(body))
	if err != nil {
		t.Fatalf("ParseProjectListJSON: %v", err)
	}
	if _, ok := names["foo-bar-baz"]; !ok {
		t.Fatalf("expected normalized name foo-bar-baz, got %v", names)
	}
	if _, ok := names["already-normal"]; !ok {
		t.Fatalf("expected already-normal to be kept, got %v", names)
	}
}

func TestParseJSONMalformedCoreMetadataFallsBackPermissively(t *testing.T) {
	body := `{"meta":{"api-version":"1.0"},"files":[{"filename":"a.whl","url":"a.whl","core-metadata":"not-a-valid-value"}]}`
	files, err := ParseJSON(strings.NewReader(body), "https://index.example.org/simple/a/", nil)
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	if files[0].CoreMetadata == nil {
		t.Fatal("expected core metadata to be present despite the malformed value")
	}
	if len(files[0].CoreMetadata.Hashes) != 0 {
		t.Errorf("expected no hashes for a malformed value, got %v", files[0].CoreMetadata.Hashes)
	}
}
