package model

import (
	"strconv"
	"time"
)

// RootParentID はルート直下を表す親IDの番兵値。
const RootParentID int64 = 0

// FileType はファイルレコードの種別を表す。
type FileType string

const (
	// FileTypeFolder はフォルダ。バイト列を持たない。
	FileTypeFolder FileType = "folder"
	// FileTypeFile は通常ファイル。
	FileTypeFile FileType = "file"
	// FileTypeImage は画像ファイル。作成時にサムネイル生成ジョブが投入される。
	FileTypeImage FileType = "image"
)

// ParseFileType は文字列をFileTypeに変換する。未知の種別の場合はfalseを返す。
func ParseFileType(s string) (FileType, bool) {
	switch FileType(s) {
	case FileTypeFolder, FileTypeFile, FileTypeImage:
		return FileType(s), true
	default:
		return "", false
	}
}

// File はアップロードされたファイルまたはフォルダのメタデータを表す。
// LocalPathはType != folderの場合のみ設定される。
type File struct {
	ID        int64
	UserID    int64
	Name      string
	Type      FileType
	ParentID  int64
	IsPublic  bool
	LocalPath string
	CreatedAt time.Time
}

// IsFolder はフォルダかどうかを返す。
func (f *File) IsFolder() bool {
	return f.Type == FileTypeFolder
}

// ThumbnailPath は指定幅のサムネイルの保存先パスを返す。
// 元ファイルのパスに "_<width>" を付与した兄弟パスとなる。
func (f *File) ThumbnailPath(width int) string {
	return ThumbnailPath(f.LocalPath, width)
}

// ThumbnailPath は元ファイルのパスから指定幅のサムネイルパスを組み立てる。
func ThumbnailPath(localPath string, width int) string {
	return localPath + "_" + strconv.Itoa(width)
}
