package agent

import "github.com/hearthware/applicall/pkg/realtime"

// Tools returns the static tool schema offered to the model at session
// setup. Names here must match the cases in [Dispatcher.Execute].
func Tools() []realtime.ToolDefinition {
	return []realtime.ToolDefinition{
		{
			Name:        "get_troubleshooting_steps",
			Description: "Get troubleshooting steps for a specific appliance issue. Use this to guide the customer through basic fixes before scheduling a technician.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"appliance_type": map[string]any{
						"type":        "string",
						"description": "The type of appliance (washer, dryer, refrigerator, dishwasher, oven, hvac, etc.)",
					},
					"symptom": map[string]any{
						"type":        "string",
						"description": "The main symptom or issue the customer is experiencing",
					},
				},
				"required": []string{"appliance_type", "symptom"},
			},
		},
		{
			Name:        "check_technician_availability",
			Description: "Check available appointment slots for a technician visit. Use this when the customer needs to schedule a service call.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"zip_code": map[string]any{
						"type":        "string",
						"description": "The customer's 5-digit zip code",
					},
					"appliance_type": map[string]any{
						"type":        "string",
						"description": "The type of appliance that needs service",
					},
					"preferred_time": map[string]any{
						"type":        "string",
						"enum":        []string{"morning", "afternoon", "any"},
						"description": "Customer's preferred time of day for the appointment",
					},
				},
				"required": []string{"zip_code", "appliance_type"},
			},
		},
		{
			Name:        "book_appointment",
			Description: "Book a technician appointment. Only use this after confirming the date and time with the customer.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"slot_id": map[string]any{
						"type":        "integer",
						"description": "The ID of the time slot to book",
					},
					"customer_name": map[string]any{
						"type":        "string",
						"description": "The customer's full name",
					},
					"customer_zip_code": map[string]any{
						"type":        "string",
						"description": "The customer's zip code",
					},
					"appliance_type": map[string]any{
						"type":        "string",
						"description": "The type of appliance",
					},
					"issue_description": map[string]any{
						"type":        "string",
						"description": "Brief description of the issue",
					},
				},
				"required": []string{"slot_id", "customer_name", "appliance_type", "issue_description"},
			},
		},
		{
			Name:        "request_image_upload",
			Description: "Send the customer a link to upload a photo of their appliance. Use this when a visual would help diagnose the issue.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"email": map[string]any{
						"type":        "string",
						"description": "The customer's email address to send the upload link",
					},
					"appliance_type": map[string]any{
						"type":        "string",
						"description": "The type of appliance to photograph",
					},
					"specific_area": map[string]any{
						"type":        "string",
						"description": "Specific area or part to photograph (optional)",
					},
				},
				"required": []string{"email"},
			},
		},
		{
			Name:        "update_customer_info",
			Description: "Update the customer's information in the system.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name": map[string]any{
						"type":        "string",
						"description": "Customer's name",
					},
					"email": map[string]any{
						"type":        "string",
						"description": "Customer's email address",
					},
					"zip_code": map[string]any{
						"type":        "string",
						"description": "Customer's zip code",
					},
					"address": map[string]any{
						"type":        "string",
						"description": "Customer's street address",
					},
				},
			},
		},
	}
}
