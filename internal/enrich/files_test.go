package enrich

import (
	"fmt"
	"testing"

	"auroramag/detailservice/internal/domain"
)

func TestClassifyFile(t *testing.T) {
	cases := map[string]FileType{
		"Movie.2010.mkv":       {Type: FileTypeVideo, Icon: "🎬", Extension: "mkv"},
		"subs/English.SRT":     {Type: FileTypeSubtitle, Icon: "💬", Extension: "srt"},
		"cover.webp":           {Type: FileTypeImage, Icon: "🖼️", Extension: "webp"},
		"Release.nfo":          {Type: FileTypeOther, Icon: "📁", Extension: "nfo"},
		"setup.bin":            {Type: FileTypeOther, Icon: "📄", Extension: "bin"},
		"README":               {Type: FileTypeOther, Icon: "📄", Extension: ""},
		"archive.part01.rar":   {Type: FileTypeArchive, Icon: "📦", Extension: "rar"},
		"Soundtrack/01.FLAC":   {Type: FileTypeAudio, Icon: "🎵", Extension: "flac"},
		"docs/manual.v2.1.pdf": {Type: FileTypeDocument, Icon: "📄", Extension: "pdf"},
	}
	for path, want := range cases {
		if got := ClassifyFile(path); got != want {
			t.Fatalf("ClassifyFile(%q): expected %+v, got %+v", path, want, got)
		}
	}
}

func TestAnalyzeFilesGroupsByType(t *testing.T) {
	files := []domain.FileEntry{
		{Index: 0, Path: "movie.mkv", Size: 1000},
		{Index: 1, Path: "subs/movie.srt", Size: 34},
	}

	stats := AnalyzeFiles(files)

	if stats.TotalSize != 1034 {
		t.Fatalf("expected total size 1034, got %d", stats.TotalSize)
	}
	if stats.FileCount != 2 {
		t.Fatalf("expected 2 files, got %d", stats.FileCount)
	}
	video := stats.ByType[FileTypeVideo]
	if video == nil || video.Count != 1 || video.Size != 1000 {
		t.Fatalf("unexpected video bucket: %+v", video)
	}
	subtitle := stats.ByType[FileTypeSubtitle]
	if subtitle == nil || subtitle.Count != 1 || subtitle.Size != 34 {
		t.Fatalf("unexpected subtitle bucket: %+v", subtitle)
	}
	if stats.LargestFile == nil || stats.LargestFile.Path != "movie.mkv" {
		t.Fatalf("expected movie.mkv as largest file, got %+v", stats.LargestFile)
	}
}

func TestAnalyzeFilesLargestKeepsFirstOnTie(t *testing.T) {
	stats := AnalyzeFiles([]domain.FileEntry{
		{Index: 0, Path: "a.mkv", Size: 500},
		{Index: 1, Path: "b.mkv", Size: 500},
		{Index: 2, Path: "c.txt", Size: 10},
	})
	if stats.LargestFile == nil || stats.LargestFile.Path != "a.mkv" {
		t.Fatalf("expected first file to win tie, got %+v", stats.LargestFile)
	}
	bucket := stats.ByType[FileTypeVideo]
	if len(bucket.Files) != 2 || bucket.Files[0].Path != "a.mkv" || bucket.Files[1].Path != "b.mkv" {
		t.Fatalf("expected bucket to keep input order, got %+v", bucket.Files)
	}
}

func TestAnalyzeFilesEmpty(t *testing.T) {
	stats := AnalyzeFiles(nil)
	if stats.TotalSize != 0 || stats.FileCount != 0 || stats.LargestFile != nil {
		t.Fatalf("expected empty stats, got %+v", stats)
	}
	if len(stats.ByType) != 0 {
		t.Fatalf("expected no buckets, got %d", len(stats.ByType))
	}
}

func TestImageFilesCapsAtTwelve(t *testing.T) {
	files := []domain.FileEntry{{Path: "movie.mkv"}, {Path: "logo.svg"}}
	for i := 0; i < 20; i++ {
		files = append(files, domain.FileEntry{Index: i, Path: fmt.Sprintf("screens/%02d.JPG", i)})
	}

	images := ImageFiles(files)
	if len(images) != 12 {
		t.Fatalf("expected 12 images, got %d", len(images))
	}
	if images[0].Path != "screens/00.JPG" {
		t.Fatalf("expected input order, got first %q", images[0].Path)
	}
}
