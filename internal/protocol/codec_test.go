package protocol

import (
	"bytes"
	"testing"
)

func roundTrip(t *testing.T, m *Main) *Main {
	t.Helper()
	got, err := Unmarshal(m.Marshal())
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	return got
}

func TestAppStartRoundTrip(t *testing.T) {
	m := &Main{
		CommandID: 7,
		Content:   &AppStartRequest{Name: "/ext/apps/Tools/clock.fap", Args: "24h"},
	}
	got := roundTrip(t, m)
	if got.CommandID != 7 {
		t.Errorf("CommandID = %d, want 7", got.CommandID)
	}
	req, ok := got.Content.(*AppStartRequest)
	if !ok {
		t.Fatalf("Content is %T", got.Content)
	}
	if req.Name != "/ext/apps/Tools/clock.fap" || req.Args != "24h" {
		t.Errorf("got %+v", req)
	}
}

func TestStorageListRoundTrip(t *testing.T) {
	m := &Main{
		CommandID: 3,
		HasNext:   true,
		Content: &StorageListResponse{Files: []File{
			{Type: FileTypeDir, Name: "apps"},
			{Type: FileTypeFile, Name: "readme.txt", Size: 128},
		}},
	}
	got := roundTrip(t, m)
	if !got.HasNext {
		t.Error("HasNext lost")
	}
	resp, ok := got.Content.(*StorageListResponse)
	if !ok {
		t.Fatalf("Content is %T", got.Content)
	}
	if len(resp.Files) != 2 {
		t.Fatalf("got %d files", len(resp.Files))
	}
	if resp.Files[0].Type != FileTypeDir || resp.Files[0].Name != "apps" {
		t.Errorf("dir entry: %+v", resp.Files[0])
	}
	if resp.Files[1].Size != 128 {
		t.Errorf("file entry: %+v", resp.Files[1])
	}
}

func TestStorageWriteRoundTrip(t *testing.T) {
	data := []byte{0xde, 0xad, 0xbe, 0xef}
	m := &Main{
		CommandID: 11,
		Content: &StorageWriteRequest{
			Path:  "/ext/test.bin",
			Chunk: FileChunk{Offset: 512, Data: data, Eof: true},
		},
	}
	req := roundTrip(t, m).Content.(*StorageWriteRequest)
	if req.Path != "/ext/test.bin" {
		t.Errorf("Path = %q", req.Path)
	}
	if req.Chunk.Offset != 512 || !req.Chunk.Eof || !bytes.Equal(req.Chunk.Data, data) {
		t.Errorf("chunk: %+v", req.Chunk)
	}
}

func TestStatusAndEmpty(t *testing.T) {
	m := &Main{CommandID: 2, Status: StatusErrorStorageNotExist, Content: &Empty{}}
	got := roundTrip(t, m)
	if got.Status != StatusErrorStorageNotExist {
		t.Errorf("Status = %v", got.Status)
	}
	if _, ok := got.Content.(*Empty); !ok {
		t.Errorf("Content is %T", got.Content)
	}
}

func TestSetDateTimeRoundTrip(t *testing.T) {
	m := &Main{
		CommandID: 5,
		Content: &SetDateTimeRequest{DateTime: DateTime{
			Hour: 13, Minute: 37, Second: 42,
			Day: 26, Month: 8, Year: 2026, Weekday: 3,
		}},
	}
	req := roundTrip(t, m).Content.(*SetDateTimeRequest)
	want := DateTime{Hour: 13, Minute: 37, Second: 42, Day: 26, Month: 8, Year: 2026, Weekday: 3}
	if req.DateTime != want {
		t.Errorf("got %+v, want %+v", req.DateTime, want)
	}
}

// Fields from firmware revisions this client does not know about must
// not break decoding.
func TestUnknownFieldsSkipped(t *testing.T) {
	b := (&Main{CommandID: 9, Content: &StorageStatRequest{Path: "/ext"}}).Marshal()
	// field 63, varint 1: plausible future envelope extension
	b = append(b, 0xf8, 0x03, 0x01)

	got, err := Unmarshal(b)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.CommandID != 9 {
		t.Errorf("CommandID = %d", got.CommandID)
	}
	if req, ok := got.Content.(*StorageStatRequest); !ok || req.Path != "/ext" {
		t.Errorf("Content = %#v", got.Content)
	}
}

func TestBadBytesRejected(t *testing.T) {
	for _, b := range [][]byte{
		{0x08},             // tag with no value
		{0x2a, 0x05, 0x01}, // bytes field shorter than its length
	} {
		if _, err := Unmarshal(b); err == nil {
			t.Errorf("Unmarshal(% x) succeeded", b)
		}
	}
}
