package graphql

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
)

// DateTimeScalar handles PostgreSQL temporal values. Values leave the
// executor as RFC 3339 strings; inputs accept time.Time or a string.
var DateTimeScalar = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "DateTime",
	Description: "DateTime scalar type represents date and time values in RFC 3339 format",
	Serialize: func(value interface{}) interface{} {
		switch v := value.(type) {
		case time.Time:
			return v.Format(time.RFC3339Nano)
		case *time.Time:
			if v == nil {
				return nil
			}
			return v.Format(time.RFC3339Nano)
		case string:
			return v
		default:
			return fmt.Sprintf("%v", v)
		}
	},
	ParseValue: func(value interface{}) interface{} {
		switch v := value.(type) {
		case string:
			return v
		case time.Time:
			return v
		default:
			return nil
		}
	},
	ParseLiteral: func(valueAST ast.Value) interface{} {
		if v, ok := valueAST.(*ast.StringValue); ok {
			return v.Value
		}
		return nil
	},
})

// UUIDScalar validates UUID text on the way in and renders uuid values as
// strings on the way out.
var UUIDScalar = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "UUID",
	Description: "UUID scalar type represents a universally unique identifier",
	Serialize: func(value interface{}) interface{} {
		switch v := value.(type) {
		case uuid.UUID:
			return v.String()
		case [16]byte:
			return uuid.UUID(v).String()
		case []byte:
			if u, err := uuid.FromBytes(v); err == nil {
				return u.String()
			}
			return string(v)
		case string:
			return v
		default:
			return fmt.Sprintf("%v", v)
		}
	},
	ParseValue: func(value interface{}) interface{} {
		if s, ok := value.(string); ok {
			if _, err := uuid.Parse(s); err == nil {
				return s
			}
		}
		return nil
	},
	ParseLiteral: func(valueAST ast.Value) interface{} {
		if v, ok := valueAST.(*ast.StringValue); ok {
			if _, err := uuid.Parse(v.Value); err == nil {
				return v.Value
			}
		}
		return nil
	},
})

// JSONScalar passes structured values through untouched and decodes JSON
// text when the database hands us a raw string.
var JSONScalar = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "JSON",
	Description: "JSON scalar type represents arbitrary JSON values",
	Serialize: func(value interface{}) interface{} {
		switch v := value.(type) {
		case map[string]interface{}:
			return v
		case []interface{}:
			return v
		case string:
			var result interface{}
			if err := json.Unmarshal([]byte(v), &result); err != nil {
				return v
			}
			return result
		case []byte:
			var result interface{}
			if err := json.Unmarshal(v, &result); err != nil {
				return string(v)
			}
			return result
		default:
			return v
		}
	},
	ParseValue: func(value interface{}) interface{} {
		return value
	},
	ParseLiteral: func(valueAST ast.Value) interface{} {
		switch v := valueAST.(type) {
		case *ast.StringValue:
			var result interface{}
			if err := json.Unmarshal([]byte(v.Value), &result); err != nil {
				return v.Value
			}
			return result
		case *ast.ObjectValue:
			return parseObjectValue(v)
		case *ast.ListValue:
			return parseListValue(v)
		default:
			return nil
		}
	},
})

// BigIntScalar represents bigint columns as strings to avoid precision loss
// in JavaScript clients.
var BigIntScalar = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "BigInt",
	Description: "BigInt scalar type represents large integers as strings",
	Serialize: func(value interface{}) interface{} {
		switch v := value.(type) {
		case int64:
			return fmt.Sprintf("%d", v)
		case *int64:
			if v == nil {
				return nil
			}
			return fmt.Sprintf("%d", *v)
		case int:
			return fmt.Sprintf("%d", v)
		case string:
			return v
		default:
			return fmt.Sprintf("%v", v)
		}
	},
	ParseValue: func(value interface{}) interface{} {
		switch v := value.(type) {
		case string:
			var n int64
			if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
				return nil
			}
			return n
		case int:
			return int64(v)
		case float64:
			return int64(v)
		default:
			return nil
		}
	},
	ParseLiteral: func(valueAST ast.Value) interface{} {
		switch v := valueAST.(type) {
		case *ast.StringValue:
			var n int64
			if _, err := fmt.Sscanf(v.Value, "%d", &n); err != nil {
				return nil
			}
			return n
		case *ast.IntValue:
			var n int64
			if _, err := fmt.Sscanf(v.Value, "%d", &n); err != nil {
				return nil
			}
			return n
		default:
			return nil
		}
	},
})

func parseObjectValue(v *ast.ObjectValue) map[string]interface{} {
	result := make(map[string]interface{})
	for _, field := range v.Fields {
		result[field.Name.Value] = parseASTValue(field.Value)
	}
	return result
}

func parseListValue(v *ast.ListValue) []interface{} {
	result := make([]interface{}, len(v.Values))
	for i, val := range v.Values {
		result[i] = parseASTValue(val)
	}
	return result
}

func parseASTValue(v ast.Value) interface{} {
	switch val := v.(type) {
	case *ast.StringValue:
		return val.Value
	case *ast.IntValue:
		var n int64
		fmt.Sscanf(val.Value, "%d", &n)
		return n
	case *ast.FloatValue:
		var f float64
		fmt.Sscanf(val.Value, "%f", &f)
		return f
	case *ast.BooleanValue:
		return val.Value
	case *ast.ObjectValue:
		return parseObjectValue(val)
	case *ast.ListValue:
		return parseListValue(val)
	default:
		return nil
	}
}
