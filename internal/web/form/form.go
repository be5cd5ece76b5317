// Package form evaluates declarative field rules against submitted values.
package form

import (
	"regexp"

	v10 "github.com/go-playground/validator/v10"
	"golang.org/x/text/message"

	"myidoru.app/web/internal/web/i18n"
)

// Field names shared by the login and signup forms.
const (
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldConfirmPassword = "confirmPassword"
)

const (
	tagRequired   = "required"
	tagLooseEmail = "looseemail"
	tagEqualField = "eqfield"
)

// looseEmailPattern accepts anything shaped like x@y.z.
var looseEmailPattern = regexp.MustCompile(`\S+@\S+\.\S+`)

// Rule is a single validator tag with the message key reported when it fails.
// Other names a sibling field for comparison tags such as eqfield.
type Rule struct {
	Tag     string
	Other   string
	Message string
}

// Field describes one input and its rules, evaluated in order.
type Field struct {
	Name  string
	Rules []Rule
}

// Values holds submitted values keyed by field name.
type Values map[string]string

// Errors maps a field name to its first failing rule's message.
type Errors map[string]string

// Valid reports whether no field failed.
func (e Errors) Valid() bool { return len(e) == 0 }

// Get returns the message for the field, or "".
func (e Errors) Get(name string) string { return e[name] }

// Only keeps the errors of the named fields.
func (e Errors) Only(names ...string) Errors {
	out := make(Errors, len(names))
	for _, name := range names {
		if msg, ok := e[name]; ok {
			out[name] = msg
		}
	}
	return out
}

// Form is an ordered list of field descriptors.
type Form struct {
	fields   []Field
	validate *v10.Validate
}

// New builds a form from descriptors.
func New(fields ...Field) *Form {
	v := v10.New()
	if err := v.RegisterValidation(tagLooseEmail, func(fl v10.FieldLevel) bool {
		return looseEmailPattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return &Form{fields: append([]Field(nil), fields...), validate: v}
}

// Fields returns the descriptors in declaration order.
func (f *Form) Fields() []Field {
	return append([]Field(nil), f.fields...)
}

// Names returns the field names in declaration order.
func (f *Form) Names() []string {
	names := make([]string, len(f.fields))
	for i, field := range f.fields {
		names[i] = field.Name
	}
	return names
}

// Validate checks every field and returns the localized message of the first
// failing rule per field. A nil printer uses the default catalog.
func (f *Form) Validate(p *message.Printer, values Values) Errors {
	if p == nil {
		p = i18n.Default().Printer(i18n.Default().Fallback())
	}
	errs := Errors{}
	for _, field := range f.fields {
		value := values[field.Name]
		for _, rule := range field.Rules {
			if f.check(rule, value, values) {
				continue
			}
			errs[field.Name] = p.Sprintf(rule.Message)
			break
		}
	}
	return errs
}

func (f *Form) check(rule Rule, value string, values Values) bool {
	var err error
	if rule.Other != "" {
		err = f.validate.VarWithValue(value, values[rule.Other], rule.Tag)
	} else {
		err = f.validate.Var(value, rule.Tag)
	}
	return err == nil
}

var (
	emailField = Field{Name: FieldEmail, Rules: []Rule{
		{Tag: tagRequired, Message: i18n.EmailRequired},
		{Tag: tagLooseEmail, Message: i18n.EmailInvalid},
	}}
	passwordField = Field{Name: FieldPassword, Rules: []Rule{
		{Tag: tagRequired, Message: i18n.PasswordRequired},
		{Tag: "min=6", Message: i18n.PasswordTooShort},
	}}
	confirmPasswordField = Field{Name: FieldConfirmPassword, Rules: []Rule{
		{Tag: tagRequired, Message: i18n.ConfirmPasswordRequired},
		{Tag: tagEqualField, Other: FieldPassword, Message: i18n.ConfirmPasswordMismatch},
	}}
)

// SignUp returns the signup form descriptors.
func SignUp() *Form {
	return New(emailField, passwordField, confirmPasswordField)
}

// LoginSubmittable reports whether the login submit button is enabled. The
// login page performs no format check.
func LoginSubmittable(email, password string) bool {
	return email != "" && password != ""
}
