package document

// languageByExtension maps a lowercased file extension (without the dot) to
// an editor language id. Unknown extensions fall back to "plaintext".
var languageByExtension = map[string]string{
	"rs":         "rust",
	"js":         "javascript",
	"mjs":        "javascript",
	"cjs":        "javascript",
	"jsx":        "javascriptreact",
	"ts":         "typescript",
	"mts":        "typescript",
	"cts":        "typescript",
	"tsx":        "typescriptreact",
	"py":         "python",
	"pyw":        "python",
	"rb":         "ruby",
	"go":         "go",
	"java":       "java",
	"c":          "c",
	"cpp":        "cpp",
	"cc":         "cpp",
	"cxx":        "cpp",
	"h":          "cpp",
	"hpp":        "cpp",
	"hxx":        "cpp",
	"cs":         "csharp",
	"php":        "php",
	"swift":      "swift",
	"kt":         "kotlin",
	"kts":        "kotlin",
	"scala":      "scala",
	"html":       "html",
	"htm":        "html",
	"css":        "css",
	"scss":       "scss",
	"sass":       "scss",
	"less":       "less",
	"json":       "json",
	"jsonc":      "jsonc",
	"xml":        "xml",
	"yaml":       "yaml",
	"yml":        "yaml",
	"toml":       "toml",
	"md":         "markdown",
	"markdown":   "markdown",
	"sql":        "sql",
	"sh":         "shellscript",
	"bash":       "shellscript",
	"zsh":        "shellscript",
	"ps1":        "powershell",
	"psm1":       "powershell",
	"graphql":    "graphql",
	"gql":        "graphql",
	"vue":        "vue",
	"svelte":     "svelte",
	"lua":        "lua",
	"r":          "r",
	"dart":       "dart",
	"elm":        "elm",
	"ex":         "elixir",
	"exs":        "elixir",
	"erl":        "erlang",
	"hrl":        "erlang",
	"hs":         "haskell",
	"lhs":        "haskell",
	"clj":        "clojure",
	"cljs":       "clojure",
	"cljc":       "clojure",
	"fs":         "fsharp",
	"fsx":        "fsharp",
	"fsi":        "fsharp",
	"ml":         "ocaml",
	"mli":        "ocaml",
	"nim":        "nim",
	"zig":        "zig",
	"v":          "v",
	"sol":        "solidity",
	"move":       "move",
	"proto":      "protobuf",
	"tf":         "terraform",
	"tfvars":     "terraform",
	"ini":        "ini",
	"conf":       "ini",
	"cfg":        "ini",
	"env":        "dotenv",
	"txt":        "plaintext",
	"log":        "log",
	"csv":        "csv",
	"diff":       "diff",
	"patch":      "diff",
	"mk":         "makefile",
	"cmake":      "cmake",
	"lock":       "plaintext",
}

// binaryExtensions are extensions that must never be pushed through the
// Text CRDT path.
var binaryExtensions = map[string]bool{
	"png": true, "jpg": true, "jpeg": true, "gif": true, "bmp": true, "ico": true,
	"webp": true, "tiff": true,
	"mp3": true, "wav": true, "flac": true, "ogg": true, "m4a": true,
	"mp4": true, "mov": true, "avi": true, "mkv": true, "webm": true,
	"zip": true, "tar": true, "gz": true, "bz2": true, "xz": true, "7z": true, "rar": true,
	"exe": true, "dll": true, "so": true, "dylib": true, "bin": true, "o": true, "a": true,
	"ttf": true, "otf": true, "woff": true, "woff2": true, "eot": true,
	"db": true, "sqlite": true, "sqlite3": true,
	"class": true, "pyc": true, "wasm": true,
	"pdf": true, "doc": true, "docx": true, "xls": true, "xlsx": true, "ppt": true, "pptx": true,
}
