// Command filesman はファイル管理APIサーバーとジョブワーカーを起動する。
//
// 使い方:
//
//	filesman [serve|worker|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"

	"github.com/hitoshi/filesman/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "filesman: %v\n", err)
		os.Exit(1)
	}
}
