package annotation_test

import (
	"encoding/json"
	"fmt"
	"log"

	"dococr/internal/annotation"
)

func ExampleParsePages() {
	fmt.Println(annotation.ParsePages("0-7"))
	fmt.Println(annotation.ParsePages("0, 1,x,3"))
	fmt.Println(annotation.ParsePages("5-2"))
	fmt.Println(annotation.ParsePages(""))
	// Output:
	// [0 1 2 3 4 5 6 7]
	// [0 1 3]
	// []
	// []
}

func ExampleBuildJSONSchema() {
	fields := annotation.FieldSchema{
		"foo": {Type: annotation.TypeString, Description: "d"},
	}

	env, err := annotation.BuildJSONSchema(fields, "Doc", annotation.RequiredSelected)
	if err != nil {
		log.Fatal(err)
	}

	out, _ := json.Marshal(env)
	fmt.Println(string(out))
	// Output:
	// {"type":"json_schema","json_schema":{"name":"doc","strict":true,"schema":{"type":"object","title":"Doc","properties":{"foo":{"type":"string","title":"Foo","description":"d"}},"required":[],"additionalProperties":false}}}
}

func ExampleTemplateNames() {
	for _, name := range annotation.TemplateNames() {
		tmpl, _ := annotation.Template(name)
		fmt.Printf("%s: %d fields\n", name, len(tmpl))
	}
	// Output:
	// contract: 8 fields
	// custom: 0 fields
	// id_document: 7 fields
	// invoice: 10 fields
	// letter: 6 fields
	// receipt: 6 fields
	// research_paper: 7 fields
}
