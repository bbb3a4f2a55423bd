package query

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hatlonely/sqlmodel/rdb"
	"github.com/jmoiron/sqlx"
)

const (
	PlaceholderTableName       = ":table_name"
	PlaceholderPrimaryKey      = ":primary_key"
	ParamPrimaryKeyValue       = "primary_key_value"
	LiteralPrefix              = "x:"
	literalTimeFormat          = "2006-01-02 15:04:05"
	identifierContinuationChar = `[A-Za-z0-9_]?`
)

// 保留标识符后紧跟标识符字符时视为其他名字，例如 :primary_key_value
var reservedPattern = regexp.MustCompile(`:(table_name|primary_key)(` + identifierContinuationChar + `)`)

// Renderer 绑定了表名、主键列和方言的模板渲染器
type Renderer struct {
	TableName  string
	PrimaryKey string
	// Dialect 驱动名，决定占位符格式：mysql/sqlite3 为 ?，postgres 为 $n
	Dialect string
}

// Render 使用 mysql 占位符渲染模板
func Render(template string, values map[string]any, tableName string, primaryKey string) (string, []any, error) {
	r := &Renderer{TableName: tableName, PrimaryKey: primaryKey, Dialect: "mysql"}
	return r.Render(template, values)
}

// Render 依次替换保留标识符、字面量参数，再把剩余的命名参数绑定为位置参数
func (r *Renderer) Render(template string, values map[string]any) (string, []any, error) {
	if values == nil {
		values = map[string]any{}
	}

	substituted := r.Substitute(template, values)

	bound, args, err := sqlx.Named(substituted, values)
	if err != nil {
		return "", nil, &rdb.TemplateError{Template: template, Cause: err}
	}
	if r.Dialect != "" {
		bound = sqlx.Rebind(sqlx.BindType(r.Dialect), bound)
	}
	return bound, args, nil
}

// Substitute 只做文本替换，不绑定参数
//
// 结果交给命名参数绑定，模板中原有的 :: (例如 postgres 的类型转换) 会被转义，绑定后还原。
func (r *Renderer) Substitute(template string, values map[string]any) string {
	out := reservedPattern.ReplaceAllStringFunc(template, func(match string) string {
		sub := reservedPattern.FindStringSubmatch(match)
		if sub[2] != "" {
			return match
		}
		if sub[1] == "table_name" {
			return r.TableName
		}
		return r.PrimaryKey
	})
	out = strings.ReplaceAll(out, "::", "::::")

	keys := make([]string, 0, len(values))
	for key := range values {
		if strings.Contains(out, LiteralPrefix+key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		pattern := regexp.MustCompile(regexp.QuoteMeta(LiteralPrefix+key) + "(" + identifierContinuationChar + ")")
		literal := escapeColons(Literal(values[key]))
		out = pattern.ReplaceAllStringFunc(out, func(match string) string {
			if strings.HasSuffix(match, LiteralPrefix+key) {
				return literal
			}
			return match
		})
	}
	return out
}

// 绑定阶段把 :: 还原为 :，字面量中的冒号不能被当作命名参数
func escapeColons(s string) string {
	return strings.ReplaceAll(s, ":", "::")
}

// Literal 将值格式化为 SQL 字面量
//
// 数字不加引号，其他值（包括 bool、NaN、Inf）加单引号，并将内部的单引号转义为两个单引号。
// 仅用于可信的值，例如列名、排序方向等无法参数化的位置。
func Literal(value any) string {
	if value == nil {
		return "NULL"
	}

	switch v := value.(type) {
	case string:
		return quote(v)
	case []byte:
		return quote(string(v))
	case bool:
		return quote(strconv.FormatBool(v))
	case time.Time:
		return quote(v.Format(literalTimeFormat))
	case fmt.Stringer:
		return quote(v.String())
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		// NaN 和 Inf 不是合法的数字字面量
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return quote(strconv.FormatFloat(f, 'f', -1, 64))
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return "NULL"
		}
		return Literal(rv.Elem().Interface())
	case reflect.String:
		return quote(rv.String())
	}
	return quote(fmt.Sprint(value))
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
