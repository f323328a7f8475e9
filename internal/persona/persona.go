// Package persona holds the names and instructions of every agent in the SDR graph.
package persona

import (
	"fmt"

	adkagent "google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"

	"github.com/hal9000y/sdr/internal/config"
)

// Kind identifies one agent persona.
type Kind int

const (
	Professional Kind = iota
	Engaging
	Busy
	Picker
	SubjectWriter
	HTMLConverter
	Delegate
	NameCheck
	SalesManager
	SalesManagerDirect
)

// Drafters are the drafting personas in tool order: sales_agent1, sales_agent2, sales_agent3.
var Drafters = []Kind{Professional, Engaging, Busy}

// Definition is a rendered persona.
type Definition struct {
	Kind Kind
	// Name is the agent identifier. Agents wrapped as tools are called by it.
	Name string
	// Title is the human readable name used in logs and CLI output.
	Title        string
	Description  string
	Instructions string
}

// Config returns an llm agent config for d without tools. Instructions are
// passed verbatim; braces in company descriptions are not treated as state placeholders.
func (d Definition) Config() llmagent.Config {
	instructions := d.Instructions
	return llmagent.Config{
		Name:        d.Name,
		Description: d.Description,
		InstructionProvider: func(adkagent.ReadonlyContext) (string, error) {
			return instructions, nil
		},
	}
}

const (
	// DelegateName is the agent the sales manager hands the winning draft to.
	DelegateName = "email_manager"
	// DelegateHandoffDescription tells the sales manager what the delegate is for.
	DelegateHandoffDescription = "Convert an email to HTML and send it"

	descDraft = "Write a cold sales email"
)

func (k Kind) String() string {
	switch k {
	case Professional:
		return "professional"
	case Engaging:
		return "engaging"
	case Busy:
		return "busy"
	case Picker:
		return "picker"
	case SubjectWriter:
		return "subject_writer"
	case HTMLConverter:
		return "html_converter"
	case Delegate:
		return "delegate"
	case NameCheck:
		return "name_check"
	case SalesManager:
		return "sales_manager"
	case SalesManagerDirect:
		return "sales_manager_direct"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Render builds the persona definition for cfg. It has no side effects.
func (k Kind) Render(cfg config.AgentConfig) Definition {
	d := Definition{Kind: k}
	company := cfg.CompanyContext()

	switch k {
	case Professional:
		d.Name, d.Title, d.Description = "sales_agent1", "Professional Sales Agent", descDraft
		d.Instructions = fmt.Sprintf("You are a sales agent working for %s. "+
			"You write professional, serious cold emails.", company)
	case Engaging:
		d.Name, d.Title, d.Description = "sales_agent2", "Engaging Sales Agent", descDraft
		d.Instructions = fmt.Sprintf("You are a humorous, engaging sales agent working for %s. "+
			"You write witty, engaging cold emails that are likely to get a response.", company)
	case Busy:
		d.Name, d.Title, d.Description = "sales_agent3", "Busy Sales Agent", descDraft
		d.Instructions = fmt.Sprintf("You are a busy sales agent working for %s. "+
			"You write concise, to the point cold emails.", company)
	case Picker:
		d.Name, d.Title = "sales_picker", "Sales Picker"
		d.Instructions = "You pick the best cold sales email from the given options. " +
			"Imagine you are a customer and pick the one you are most likely to respond to. " +
			"Do not give an explanation; reply with the selected email only."
	case SubjectWriter:
		d.Name, d.Title = "subject_writer", "Email subject writer"
		d.Description = "Write a subject for a cold sales email"
		d.Instructions = "You can write a subject for a cold sales email. " +
			"You are given a message and you need to write a subject for an email " +
			"that is likely to get a response."
	case HTMLConverter:
		d.Name, d.Title = "html_converter", "HTML email body converter"
		d.Description = "Convert a text email body to an HTML email body"
		d.Instructions = "You can convert a text email body to an HTML email body. " +
			"You are given a text email body which might have some markdown " +
			"and you need to convert it to an HTML email body with simple, " +
			"clear, compelling layout and design."
	case Delegate:
		d.Name, d.Title, d.Description = DelegateName, "Email Manager", DelegateHandoffDescription
		d.Instructions = "You are an email formatter and sender. You receive the body of an email to be sent. " +
			"You first use the subject_writer tool to write a subject for the email, " +
			"then use the html_converter tool to convert the body to HTML. " +
			"Finally, you use the send_html_email tool to send the email with the subject and HTML body."
	case NameCheck:
		d.Name, d.Title = "name_check", "Name check"
		d.Instructions = "Check if the user is including someone's personal name in what they want you to do."
	case SalesManager:
		d.Name, d.Title = "sales_manager", "Sales Manager"
		d.Instructions = fmt.Sprintf(salesManagerHandoff, cfg.CompanyName)
	case SalesManagerDirect:
		d.Name, d.Title = "sales_manager", "Sales Manager"
		d.Instructions = fmt.Sprintf(salesManagerDirect, cfg.CompanyName)
	}

	return d
}

const salesManagerHandoff = `You are a Sales Manager at %s. Your goal is to find the single best cold sales email using the sales_agent tools.

Follow these steps carefully:
1. Generate Drafts: Use all three sales_agent tools to generate three different email drafts. Do not proceed until all three drafts are ready.

2. Evaluate and Select: Review the drafts and choose the single best email using your judgment of which one is most effective.
You can use the tools multiple times if you're not satisfied with the results from the first try.

3. Handoff for Sending: Pass ONLY the winning email draft to the 'Email Manager' agent by calling transfer_to_agent with agent_name "email_manager" and the complete draft as email_body. The Email Manager will take care of formatting and sending.

Crucial Rules:
- You must use the sales agent tools to generate the drafts. Do not write them yourself.
- You must hand off exactly ONE email to the Email Manager. Never more than one.
`

const salesManagerDirect = `You are a Sales Manager at %s. Your goal is to find the single best cold sales email using the sales_agent tools.

Follow these steps carefully:
1. Generate Drafts: Use all three sales_agent tools to generate three different email drafts. Do not proceed until all three drafts are ready.

2. Evaluate and Select: Review the drafts and choose the single best email using your judgment of which one is most effective.

3. Use the send_email tool to send the best email (and only the best email) to the user.

Crucial Rules:
- You must use the sales agent tools to generate the drafts. Do not write them yourself.
- You must send ONE email using the send_email tool. Never more than one.
`
