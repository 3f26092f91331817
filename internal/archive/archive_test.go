package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/anatolykoptev/go_ytledger/internal/ledger"
)

func TestSanitizeTitle(t *testing.T) {
	tests := []struct{ in, want string }{
		{"AWS re:Invent 2024!!", "AWS_re_Invent_2024"},
		{"  --Keynote--  ", "Keynote"},
		{"a  b__c", "a_b_c"},
		{"!!!", ""},
	}
	for _, tt := range tests {
		if got := SanitizeTitle(tt.in); got != tt.want {
			t.Errorf("SanitizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTranscriptKeyKeepsRawParam(t *testing.T) {
	tests := []struct{ url, want string }{
		{"https://www.youtube.com/watch?v=abc123", "youtube_transcripts/video-abc123.txt"},
		{"https://www.youtube.com/watch?v=_xyz", "youtube_transcripts/video-_xyz.txt"},
		{"https://www.youtube.com/watch?v=abc&t=10", "youtube_transcripts/video-abc&t=10.txt"},
		{"https://youtu.be/short1", "youtube_transcripts/video-short1.txt"},
	}
	for _, tt := range tests {
		if got := TranscriptKey(tt.url); got != tt.want {
			t.Errorf("TranscriptKey(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestObjectKey(t *testing.T) {
	tests := []struct{ url, want string }{
		{"https://www.youtube.com/watch?v=abc123", "p/Deep_Dive_abc123.txt"},
		{"https://www.youtube.com/watch?v=_xyz", "p/Deep_Dive_xyz.txt"},
		{"https://www.youtube.com/watch?v=abc&t=10", "p/Deep_Dive_abc.txt"},
		{"https://youtu.be/short1", "p/Deep_Dive_short1.txt"},
	}
	for _, tt := range tests {
		if got := ObjectKey("p/", "Deep Dive!", tt.url); got != tt.want {
			t.Errorf("ObjectKey(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestFormatDocument(t *testing.T) {
	if got := FormatDocument("T", "x", "s"); got != "Title: T\n\nTranscript: x\n\nSummary: s" {
		t.Errorf("with summary = %q", got)
	}
	if got := FormatDocument("T", "x", ""); got != "Title: T\n\nTranscript: x" {
		t.Errorf("without summary = %q", got)
	}
}

type recordingS3 struct {
	in  *s3.PutObjectInput
	err error
}

func (r *recordingS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	r.in = in
	return &s3.PutObjectOutput{}, r.err
}

func TestArchiveToS3(t *testing.T) {
	api := &recordingS3{}
	a := NewArchiver(NewS3Sink(api, "bucket"), "")
	summary := "Short."
	rec := ledger.VideoRecord{
		VideoURL:   "https://www.youtube.com/watch?v=abc",
		Title:      "AWS re:Invent 2024!!",
		Transcript: "start - text\n",
		Summary:    &summary,
	}

	if !a.Archive(context.Background(), rec) {
		t.Fatal("Archive reported failure")
	}
	if aws.ToString(api.in.Bucket) != "bucket" {
		t.Errorf("Bucket = %q", aws.ToString(api.in.Bucket))
	}
	if got := aws.ToString(api.in.Key); got != "youtube_transcripts_with_summary/AWS_re_Invent_2024_abc.txt" {
		t.Errorf("Key = %q", got)
	}
	if aws.ToString(api.in.ContentType) != "text/plain" {
		t.Errorf("ContentType = %q", aws.ToString(api.in.ContentType))
	}
	body, _ := io.ReadAll(api.in.Body)
	if string(body) != "Title: AWS re:Invent 2024!!\n\nTranscript: start - text\n\n\nSummary: Short." {
		t.Errorf("Body = %q", body)
	}
}

func TestArchiveSwallowsSinkErrors(t *testing.T) {
	a := NewArchiver(NewS3Sink(&recordingS3{err: errors.New("denied")}, "b"), "")
	if a.Archive(context.Background(), ledger.VideoRecord{VideoURL: "https://www.youtube.com/watch?v=a", Title: "t"}) {
		t.Error("expected failure to be reported")
	}
}

func TestDirSinkTranscriptOnly(t *testing.T) {
	root := t.TempDir()
	a := NewArchiver(NewDirSink(root), "")
	rec := ledger.VideoRecord{VideoURL: "https://www.youtube.com/watch?v=abc", Title: "T", Transcript: "body"}

	if !a.ArchiveTranscript(context.Background(), rec) {
		t.Fatal("ArchiveTranscript failed")
	}
	got, err := os.ReadFile(filepath.Join(root, "youtube_transcripts", "video-abc.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "Title: T\n\nTranscript:\nbody" {
		t.Errorf("content = %q", got)
	}
}
