package mcpserver

import "fmt"

// parseStringArg extracts a string argument from an MCP arguments map.
func parseStringArg(argsMap map[string]interface{}, key string, required bool) (string, error) {
	val, ok := argsMap[key]
	if !ok {
		if required {
			return "", fmt.Errorf("%s parameter is required", key)
		}
		return "", nil
	}

	str, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", key)
	}
	if required && str == "" {
		return "", fmt.Errorf("%s cannot be empty", key)
	}
	return str, nil
}

// parseIntArg extracts an integer argument. MCP sends numbers as float64.
func parseIntArg(argsMap map[string]interface{}, key string, defaultVal int) int {
	val, ok := argsMap[key]
	if !ok {
		return defaultVal
	}
	if f, ok := val.(float64); ok {
		return int(f)
	}
	return defaultVal
}

// parseFloatArg extracts a float32 argument, defaulting to 0 when absent.
func parseFloatArg(argsMap map[string]interface{}, key string) float32 {
	val, ok := argsMap[key]
	if !ok {
		return 0
	}
	if f, ok := val.(float64); ok {
		return float32(f)
	}
	return 0
}

// parseStringArrayArg extracts a string array argument, filtering non-strings.
func parseStringArrayArg(argsMap map[string]interface{}, key string) []string {
	val, ok := argsMap[key]
	if !ok {
		return nil
	}
	arr, ok := val.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
