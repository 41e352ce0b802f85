package model

// キュー名。投入側とワーカー側で共有する。
const (
	FileQueueName = "fileQueue"
	UserQueueName = "userQueue"
)

// ThumbnailJob は画像ファイルのサムネイル生成要求を表す。
// 0値のフィールドは「未指定」として扱う。
type ThumbnailJob struct {
	UserID int64 `json:"userId"`
	FileID int64 `json:"fileId"`
}

// WelcomeJob は新規ユーザー登録時の歓迎処理要求を表す。
type WelcomeJob struct {
	UserID int64 `json:"userId"`
}
