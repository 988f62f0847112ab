package annotation

import "sort"

// CustomTemplate selects user-defined fields instead of a preset.
const CustomTemplate = "custom"

// Preset tables are read-only after package init. Accessors hand out clones.
var documentTemplates = map[string]FieldSchema{
	CustomTemplate: {},

	"invoice": {
		"total_amount":    {Type: TypeNumber, Description: "Total amount including all taxes and fees"},
		"net_amount":      {Type: TypeNumber, Description: "Net amount before taxes"},
		"tax_amount":      {Type: TypeNumber, Description: "Tax amount"},
		"customer_number": {Type: TypeString, Description: "Customer or client identification number"},
		"invoice_number":  {Type: TypeString, Description: "Invoice number or reference"},
		"invoice_date":    {Type: TypeString, Description: "Invoice date"},
		"due_date":        {Type: TypeString, Description: "Payment due date"},
		"vendor_name":     {Type: TypeString, Description: "Name of the company or vendor issuing the invoice"},
		"customer_name":   {Type: TypeString, Description: "Name of the customer or client"},
		"payment_method":  {Type: TypeString, Description: "Accepted payment methods"},
	},

	"letter": {
		"sender":        {Type: TypeString, Description: "Name and address of the sender"},
		"recipient":     {Type: TypeString, Description: "Name and address of the recipient"},
		"document_date": {Type: TypeString, Description: "Date when the letter was written"},
		"reference":     {Type: TypeString, Description: "File number, case reference or subject line"},
		"subject":       {Type: TypeString, Description: "Subject or topic of the letter"},
		"letter_type":   {Type: TypeString, Description: "Type of correspondence (official, personal, business, etc.)"},
	},

	"contract": {
		"contract_title":  {Type: TypeString, Description: "Title or type of contract"},
		"party_1":         {Type: TypeString, Description: "First contracting party (name and details)"},
		"party_2":         {Type: TypeString, Description: "Second contracting party (name and details)"},
		"contract_date":   {Type: TypeString, Description: "Date when the contract was signed"},
		"start_date":      {Type: TypeString, Description: "Contract start date"},
		"end_date":        {Type: TypeString, Description: "Contract end date"},
		"contract_amount": {Type: TypeNumber, Description: "Contract value or amount"},
		"key_terms":       arrayOf("Key terms and conditions"),
	},

	"receipt": {
		"store_name":     {Type: TypeString, Description: "Name of the store or business"},
		"total_amount":   {Type: TypeNumber, Description: "Total amount paid"},
		"purchase_date":  {Type: TypeString, Description: "Date of purchase"},
		"receipt_number": {Type: TypeString, Description: "Receipt or transaction number"},
		"payment_method": {Type: TypeString, Description: "How the payment was made (cash, card, etc.)"},
		"items":          arrayOf("List of purchased items"),
	},

	"id_document": {
		"full_name":         {Type: TypeString, Description: "Full name as shown on the document"},
		"birth_date":        {Type: TypeString, Description: "Date of birth"},
		"id_number":         {Type: TypeString, Description: "ID number or passport number"},
		"nationality":       {Type: TypeString, Description: "Nationality or citizenship"},
		"issue_date":        {Type: TypeString, Description: "Date when the document was issued"},
		"expiry_date":       {Type: TypeString, Description: "Document expiry date"},
		"issuing_authority": {Type: TypeString, Description: "Authority that issued the document"},
	},

	"research_paper": {
		"title":            {Type: TypeString, Description: "Title of the research paper"},
		"authors":          arrayOf("List of authors"),
		"abstract":         {Type: TypeString, Description: "Abstract or summary of the paper"},
		"keywords":         arrayOf("Keywords or key topics"),
		"publication_date": {Type: TypeString, Description: "Publication date"},
		"journal":          {Type: TypeString, Description: "Journal or conference name"},
		"doi":              {Type: TypeString, Description: "DOI or other identifier"},
	},
}

var defaultBBoxSchema = FieldSchema{
	"element_type": {Type: TypeString, Description: "Type of visual element (chart, table, figure, etc.)"},
	"description":  {Type: TypeString, Description: "Description of what the element shows"},
	"key_data":     arrayOf("Key data points or insights from the element"),
}

var defaultCustomFields = FieldSchema{
	"total_amount":  {Type: TypeNumber, Description: "Total amount including all taxes and fees"},
	"document_date": {Type: TypeString, Description: "Date when the document was created"},
}

var defaultAdvancedDocumentSchema = FieldSchema{
	"document_type": {Type: TypeString, Description: "The type/category of the document"},
	"language":      {Type: TypeString, Description: "The primary language of the document"},
}

// quickFields are the presets offered by the visual field collection. The
// Required flag is a suggestion shown by the templates command; a collection
// entry is required only when it sets required itself.
var quickFields = FieldSchema{
	"total_amount":        {Type: TypeNumber, Description: "Total amount including all taxes and fees", Required: true},
	"net_amount":          {Type: TypeNumber, Description: "Net amount before taxes"},
	"tax_amount":          {Type: TypeNumber, Description: "Tax amount"},
	"customer_number":     {Type: TypeString, Description: "Customer or client identification number"},
	"document_number":     {Type: TypeString, Description: "Invoice, receipt, or document number"},
	"document_title":      {Type: TypeString, Description: `Title or brief summary of the document content (e.g. "Invoice for IT Services", "Contract for Office Rental")`},
	"document_date":       {Type: TypeString, Description: "Date when the document was created in DD.MM.YYYY format, return null if not found", Required: true},
	"due_date":            {Type: TypeString, Description: "Payment due date"},
	"dueDate":             {Type: TypeString, Description: "Payment due date in DD.MM.YYYY format, return null if not found"},
	"dueDateSkonto":       {Type: TypeString, Description: "Early payment discount due date in DD.MM.YYYY format, return null if not found"},
	"skontoPercent":       {Type: TypeNumber, Description: `Early payment discount percentage as decimal (e.g. "Skonto 2%", "2,0% discount"). Extract decimal value, return null if not found.`},
	"amountWithoutSkonto": {Type: TypeNumber, Description: `Gross amount from lines like "Bruttobetrag", "Gesamt", "Total" or net + tax. Return as decimal with dot separator, null if not found.`},
	"amountWithSkonto":    {Type: TypeNumber, Description: `Amount with early payment discount applied (explicit "Zahlbetrag" or calculated). Return as decimal with dot separator, 2 decimal places, null if not found.`},
	"sender":              {Type: TypeString, Description: "Name or company name of the sender (without address)"},
	"recipient":           {Type: TypeString, Description: "Name or company name of the recipient (without address)"},
	"sender_address":      {Type: TypeString, Description: "Full address of the sender"},
	"recipient_address":   {Type: TypeString, Description: "Full address of the recipient"},
	"reference":           {Type: TypeString, Description: "File number, case reference or subject line"},
	"company_name":        {Type: TypeString, Description: "Name of the company"},
	"address":             {Type: TypeString, Description: "Street address"},
	"payment_method":      {Type: TypeString, Description: "How the payment was made"},
	"phone_number":        {Type: TypeString, Description: "Contact phone number"},
	"email":               {Type: TypeString, Description: "Email address"},
}

// Template returns the preset schema for id. Unknown ids yield an empty
// schema; ok reports whether id is a known template.
func Template(id string) (schema FieldSchema, ok bool) {
	tmpl, ok := documentTemplates[id]
	if !ok {
		return FieldSchema{}, false
	}
	return tmpl.Clone(), true
}

// TemplateNames returns all known template ids, sorted.
func TemplateNames() []string {
	names := make([]string, 0, len(documentTemplates))
	for name := range documentTemplates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultBBoxSchema returns the element-annotation fields used when advanced
// mode is off.
func DefaultBBoxSchema() FieldSchema { return defaultBBoxSchema.Clone() }

// DefaultCustomFields returns the starter fields for the custom template.
func DefaultCustomFields() FieldSchema { return defaultCustomFields.Clone() }

// DefaultAdvancedDocumentSchema returns the starter document schema for
// advanced mode.
func DefaultAdvancedDocumentSchema() FieldSchema { return defaultAdvancedDocumentSchema.Clone() }

// QuickField looks up a quick-field preset by name.
func QuickField(name string) (FieldSpec, bool) {
	spec, ok := quickFields[name]
	if !ok {
		return FieldSpec{}, false
	}
	return normalizeSpec(spec), true
}

// QuickFields returns all quick-field presets.
func QuickFields() FieldSchema { return quickFields.Clone() }
