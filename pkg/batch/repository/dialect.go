package repository

import (
	"fmt"
	"strconv"
	"strings"

	"harvester/pkg/batch/util/exception"
)

// Placeholder は n 番目 (1 始まり) のバインドパラメータの表記を返します。
type Placeholder func(n int) string

func dollarPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

func questionPlaceholder(int) string { return "?" }

// PlaceholderFor はデータベース種別に対応するプレースホルダ形式を返します。
// PostgreSQL と Redshift は $n、MySQL と Snowflake は ? を使用します。
func PlaceholderFor(dbType string) (Placeholder, error) {
	switch strings.ToLower(dbType) {
	case "postgres", "redshift":
		return dollarPlaceholder, nil
	case "mysql", "snowflake":
		return questionPlaceholder, nil
	default:
		return nil, exception.NewConfigurationError("repository", fmt.Sprintf("サポートされていないデータベースタイプです: %s", dbType))
	}
}

// Placeholders は from から始まる n 個のプレースホルダをカンマ区切りで返します。
func Placeholders(ph Placeholder, from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = ph(from + i)
	}
	return strings.Join(parts, ", ")
}
