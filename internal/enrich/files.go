package enrich

import (
	"strings"

	"auroramag/detailservice/internal/domain"
)

const (
	FileTypeVideo    = "video"
	FileTypeAudio    = "audio"
	FileTypeSubtitle = "subtitle"
	FileTypeImage    = "image"
	FileTypeDocument = "document"
	FileTypeArchive  = "archive"
	FileTypeOther    = "other"

	genericFileIcon = "📄"
	maxImageFiles   = 12
)

type FileType struct {
	Type      string `json:"type"`
	Icon      string `json:"icon"`
	Extension string `json:"ext"`
}

type fileTypeSpec struct {
	name       string
	icon       string
	extensions []string
}

// An extension must belong to exactly one entry.
var fileTypeTable = []fileTypeSpec{
	{name: FileTypeVideo, icon: "🎬", extensions: []string{"mp4", "mkv", "avi", "mov", "wmv", "flv", "webm", "m4v", "mpg", "mpeg", "ts", "m2ts"}},
	{name: FileTypeAudio, icon: "🎵", extensions: []string{"mp3", "flac", "wav", "aac", "ogg", "wma", "m4a", "ape", "dts", "ac3"}},
	{name: FileTypeSubtitle, icon: "💬", extensions: []string{"srt", "ass", "ssa", "sub", "vtt", "idx", "sup"}},
	{name: FileTypeImage, icon: "🖼️", extensions: []string{"jpg", "jpeg", "png", "gif", "bmp", "webp", "svg"}},
	{name: FileTypeDocument, icon: "📄", extensions: []string{"pdf", "doc", "docx", "txt", "rtf", "odt"}},
	{name: FileTypeArchive, icon: "📦", extensions: []string{"zip", "rar", "7z", "tar", "gz", "bz2"}},
	{name: FileTypeOther, icon: "📁", extensions: []string{"nfo", "md", "xml", "json", "exe", "dll"}},
}

var fileTypeByExtension = buildExtensionIndex(fileTypeTable)

// previewImageExtensions are the image formats worth showing as previews.
var previewImageExtensions = map[string]struct{}{
	"jpg": {}, "jpeg": {}, "png": {}, "gif": {}, "bmp": {}, "webp": {},
}

func buildExtensionIndex(table []fileTypeSpec) map[string]fileTypeSpec {
	index := make(map[string]fileTypeSpec)
	for _, spec := range table {
		for _, ext := range spec.extensions {
			if _, exists := index[ext]; exists {
				continue
			}
			index[ext] = spec
		}
	}
	return index
}

// FileExtension returns the lower-cased text after the last dot, or "".
func FileExtension(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return ""
	}
	return strings.ToLower(path[idx+1:])
}

func ClassifyFile(path string) FileType {
	ext := FileExtension(path)
	if spec, ok := fileTypeByExtension[ext]; ok {
		return FileType{Type: spec.name, Icon: spec.icon, Extension: ext}
	}
	return FileType{Type: FileTypeOther, Icon: genericFileIcon, Extension: ext}
}

// AnalyzeFiles groups files into type buckets in input order. The largest
// file is replaced only on a strictly greater size, so the first wins ties.
func AnalyzeFiles(files []domain.FileEntry) domain.FileStats {
	stats := domain.FileStats{
		ByType:    make(map[string]*domain.FileTypeBucket),
		FileCount: len(files),
	}
	for i := range files {
		file := files[i]
		kind := ClassifyFile(file.Path)

		bucket, ok := stats.ByType[kind.Type]
		if !ok {
			bucket = &domain.FileTypeBucket{Type: kind.Type, Icon: kind.Icon}
			stats.ByType[kind.Type] = bucket
		}
		bucket.Count++
		bucket.Size += file.Size
		bucket.Files = append(bucket.Files, file)
		stats.TotalSize += file.Size

		if stats.LargestFile == nil || file.Size > stats.LargestFile.Size {
			largest := file
			stats.LargestFile = &largest
		}
	}
	return stats
}

// ImageFiles returns up to 12 preview image files in input order.
func ImageFiles(files []domain.FileEntry) []domain.FileEntry {
	out := make([]domain.FileEntry, 0)
	for _, file := range files {
		if _, ok := previewImageExtensions[FileExtension(file.Path)]; !ok {
			continue
		}
		out = append(out, file)
		if len(out) >= maxImageFiles {
			break
		}
	}
	return out
}
