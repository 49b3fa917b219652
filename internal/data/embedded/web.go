package embedded

import _ "embed"

// IndexHTML is the single-page browser chat UI served at /.
//
//go:embed web/index.html
var IndexHTML []byte
