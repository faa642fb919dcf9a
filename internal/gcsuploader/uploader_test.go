package gcsuploader

import "testing"

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{"gs://bucket/data/rewards.csv", "bucket", "data/rewards.csv", false},
		{"gs://bucket/file.csv", "bucket", "file.csv", false},
		{"gs://bucket", "", "", true},
		{"gs:///file.csv", "", "", true},
		{"/tmp/file.csv", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := ParseURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseURI(%q) error = %v, wantErr %v", tt.uri, err, tt.wantErr)
			}
			if bucket != tt.wantBucket || object != tt.wantObject {
				t.Errorf("ParseURI(%q) = %q, %q; want %q, %q", tt.uri, bucket, object, tt.wantBucket, tt.wantObject)
			}
		})
	}
}

func TestJoinURI(t *testing.T) {
	if got := JoinURI("gs://b/snap/", "users.csv"); got != "gs://b/snap/users.csv" {
		t.Errorf("JoinURI with trailing slash = %q", got)
	}
	if got := JoinURI("gs://b/snap", "users.csv"); got != "gs://b/snap/users.csv" {
		t.Errorf("JoinURI = %q", got)
	}
}

func TestExtractFilenameFromGCSURI(t *testing.T) {
	if got := ExtractFilenameFromGCSURI("gs://bucket/folder/file.csv"); got != "file.csv" {
		t.Errorf("got %q, want file.csv", got)
	}
	if got := ExtractFilenameFromGCSURI("gs://bucket"); got != "bucket" {
		t.Errorf("got %q, want bucket", got)
	}
}
