package category

// DefaultPreamble is used when a session is created without a category.
const DefaultPreamble = "你是热心的助手"

// Category is a document category a session can be scoped to.
type Category struct {
	Name     string `json:"name"`
	Preamble string `json:"preamble"`
}

// Seed provides the built-in categories served by the development backend.
func Seed() []Category {
	return []Category{
		{Name: "rust", Preamble: "你是 Rust 语言专家，回答时引用所给文档。"},
		{Name: "go", Preamble: "你是 Go 语言专家，回答时引用所给文档。"},
		{Name: "recipes", Preamble: "你是一位耐心的厨师，按步骤讲解菜谱。"},
	}
}
