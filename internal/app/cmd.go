package app

import "strings"

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は募集の期限切れ処理ワーカーとして起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はスキーマのマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandHelp は使い方を表示することを示す。
	CommandHelp Command = "help"
)

// commandDescriptions は使い方の表示順とコマンドの説明。
var commandDescriptions = []struct {
	cmd  Command
	desc string
}{
	{CommandServe, "HTTP APIサーバーを起動する（デフォルト）"},
	{CommandWorker, "募集の公開期限とブースト期限を定期的に処理する"},
	{CommandMigrate, "PostgreSQLのマイグレーション、またはMongoDBのインデックス作成を行う"},
	{CommandHealthcheck, "ローカルの/healthを確認し、結果を終了コードで返す"},
}

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	case "help", "-h", "--help":
		return CommandHelp
	default:
		return CommandServe
	}
}

// Usage はサブコマンドの一覧を返す。
func Usage() string {
	var b strings.Builder
	b.WriteString("usage: roomie [command]\n\ncommands:\n")
	for _, c := range commandDescriptions {
		b.WriteString("  ")
		b.WriteString(string(c.cmd))
		b.WriteString(strings.Repeat(" ", 13-len(c.cmd)))
		b.WriteString(c.desc)
		b.WriteString("\n")
	}
	return b.String()
}
