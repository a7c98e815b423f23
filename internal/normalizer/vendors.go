package normalizer

import (
	"github.com/msp-docs/psa-sync/internal/domain"
)

const (
	active   = string(domain.RecordActive)
	inactive = string(domain.RecordInactive)

	ticketNew        = string(domain.TicketStatusNew)
	ticketInProgress = string(domain.TicketStatusInProgress)
	ticketWaiting    = string(domain.TicketStatusWaiting)
	ticketResolved   = string(domain.TicketStatusResolved)
	ticketClosed     = string(domain.TicketStatusClosed)

	online  = string(domain.DeviceOnline)
	offline = string(domain.DeviceOffline)
)

var activeFlag = map[string]string{"true": active, "false": inactive, "1": active, "0": inactive}

var inactiveFlag = map[string]string{"true": inactive, "false": active, "1": inactive, "0": active}

var lowMediumHighUrgent = map[string]domain.TicketPriority{
	"low":      domain.PriorityLow,
	"medium":   domain.PriorityMedium,
	"normal":   domain.PriorityMedium,
	"high":     domain.PriorityHigh,
	"urgent":   domain.PriorityUrgent,
	"critical": domain.PriorityUrgent,
}

var connectWiseMapping = vendorMapping{
	domain.EntityCompany: {
		fields: fields{ID: "id", Name: "name", Phone: "phoneNumber", Website: "website", Status: "status.name"},
		statuses: map[string]string{
			"active": active, "inactive": inactive, "not-approved": inactive, "delinquent": active,
		},
	},
	domain.EntityContact: {
		fields: fields{ID: "id", Company: "company.id", FirstName: "firstName", LastName: "lastName",
			Email: "defaultEmailAddress|communicationItems.0.value", Phone: "defaultPhoneNbr", Title: "title",
			Status: "inactiveFlag"},
		statuses: inactiveFlag,
	},
	domain.EntityTicket: {
		fields: fields{ID: "id", Company: "company.id", Contact: "contact.id", Subject: "summary",
			Status: "status.name", Priority: "priority.name",
			OpenedAt: "_info.dateEntered|dateEntered", ClosedAt: "closedDate"},
		statuses: map[string]string{
			"new":                       ticketNew,
			"new (portal)":              ticketNew,
			"in progress":               ticketInProgress,
			"scheduled":                 ticketInProgress,
			"assigned":                  ticketInProgress,
			"waiting customer response": ticketWaiting,
			"waiting on customer":       ticketWaiting,
			"customer updated":          ticketInProgress,
			"completed":                 ticketResolved,
			"resolved":                  ticketResolved,
			"closed":                    ticketClosed,
			">closed":                   ticketClosed,
		},
		priorities: map[string]domain.TicketPriority{
			"priority 1 - emergency response":   domain.PriorityUrgent,
			"priority 1 - critical":             domain.PriorityUrgent,
			"priority 2 - quick response":       domain.PriorityHigh,
			"priority 2 - high":                 domain.PriorityHigh,
			"priority 3 - normal response":      domain.PriorityMedium,
			"priority 3 - normal":               domain.PriorityMedium,
			"priority 4 - schedule maintenance": domain.PriorityLow,
			"priority 4 - low":                  domain.PriorityLow,
		},
	},
	domain.EntityDevice: {
		fields: fields{ID: "id", Company: "company.id", Name: "name", DeviceType: "type.name",
			Serial: "serialNumber", OS: "osType"},
	},
}

var autotaskMapping = vendorMapping{
	domain.EntityCompany: {
		fields:   fields{ID: "id", Name: "companyName", Phone: "phone", Website: "webAddress", Status: "isActive"},
		statuses: activeFlag,
	},
	domain.EntityContact: {
		fields: fields{ID: "id", Company: "companyID", FirstName: "firstName", LastName: "lastName",
			Email: "emailAddress", Phone: "phone|mobilePhone", Title: "title", Status: "isActive"},
		statuses: activeFlag,
	},
	domain.EntityTicket: {
		fields: fields{ID: "id", Company: "companyID", Contact: "contactID", Subject: "title",
			Status: "status", Priority: "priority", OpenedAt: "createDate", ClosedAt: "completedDate"},
		statuses: map[string]string{
			"1": ticketNew, "5": ticketClosed, "7": ticketWaiting, "8": ticketInProgress,
			"9": ticketWaiting, "10": ticketInProgress, "11": ticketInProgress, "12": ticketWaiting,
			"13": ticketResolved,
		},
		priorities: map[string]domain.TicketPriority{
			"1": domain.PriorityHigh, "2": domain.PriorityMedium, "3": domain.PriorityLow, "4": domain.PriorityUrgent,
		},
	},
	domain.EntityDevice: {
		fields: fields{ID: "id", Company: "companyID", Name: "referenceTitle|referenceNumber",
			DeviceType: "configurationItemType", Serial: "serialNumber"},
	},
}

var haloPSAMapping = vendorMapping{
	domain.EntityCompany: {
		fields:   fields{ID: "id", Name: "name", Phone: "main_phone|phonenumber", Website: "website", Status: "inactive"},
		statuses: inactiveFlag,
	},
	domain.EntityContact: {
		fields: fields{ID: "id", Company: "client_id", FirstName: "firstname", LastName: "surname", Name: "name",
			Email: "emailaddress", Phone: "phonenumber|mobilenumber", Title: "jobtitle", Status: "inactive"},
		statuses: inactiveFlag,
	},
	domain.EntityTicket: {
		fields: fields{ID: "id", Company: "client_id", Contact: "user_id", Subject: "summary",
			Status: "status_id", Priority: "priority_id", OpenedAt: "dateoccurred|datecreated", ClosedAt: "dateclosed"},
		statuses: map[string]string{
			"1": ticketNew, "2": ticketInProgress, "3": ticketInProgress, "4": ticketWaiting,
			"5": ticketWaiting, "8": ticketResolved, "9": ticketClosed,
		},
		priorities: map[string]domain.TicketPriority{
			"1": domain.PriorityUrgent, "2": domain.PriorityHigh, "3": domain.PriorityMedium, "4": domain.PriorityLow,
		},
	},
	domain.EntityDevice: {
		fields: fields{ID: "id", Company: "client_id", Name: "inventory_number|key_field",
			DeviceType: "assettype_name", Serial: "serialnumber|key_field2"},
	},
}

var kaseyaMapping = vendorMapping{
	domain.EntityCompany: {
		fields:   fields{ID: "Id", Name: "AccountName|Name", Phone: "Phone", Website: "Website", Status: "IsActive"},
		statuses: activeFlag,
	},
	domain.EntityContact: {
		fields: fields{ID: "Id", Company: "AccountId", FirstName: "FirstName", LastName: "LastName",
			Email: "EmailAddress|Email", Phone: "Phone", Title: "Title", Status: "IsActive"},
		statuses: activeFlag,
	},
	domain.EntityTicket: {
		fields: fields{ID: "Id", Company: "AccountId", Contact: "ContactId", Subject: "Title",
			Status: "StatusName", Priority: "PriorityName", OpenedAt: "OpenDate", ClosedAt: "ClosedDate"},
		statuses: map[string]string{
			"new": ticketNew, "open": ticketInProgress, "in progress": ticketInProgress,
			"waiting on customer": ticketWaiting, "on hold": ticketWaiting,
			"resolved": ticketResolved, "completed": ticketResolved, "closed": ticketClosed,
		},
		priorities: lowMediumHighUrgent,
	},
	domain.EntityDevice: {
		fields: fields{ID: "Id", Company: "AccountId", Name: "AssetName|Name", DeviceType: "AssetTypeName",
			Serial: "SerialNumber", OS: "OperatingSystem"},
	},
}

var syncroMapping = vendorMapping{
	domain.EntityCompany: {
		fields:   fields{ID: "id", Name: "business_name|fullname", Phone: "phone|mobile", Website: "website", Status: "disabled"},
		statuses: inactiveFlag,
	},
	domain.EntityContact: {
		fields: fields{ID: "id", Company: "customer_id", Name: "name", Email: "email", Phone: "phone|mobile", Title: "title"},
	},
	domain.EntityTicket: {
		fields: fields{ID: "id", Company: "customer_id", Contact: "contact_id", Subject: "subject",
			Status: "status", Priority: "priority", OpenedAt: "created_at", ClosedAt: "resolved_at"},
		statuses: map[string]string{
			"new": ticketNew, "in progress": ticketInProgress, "scheduled": ticketInProgress,
			"waiting on customer": ticketWaiting, "waiting for parts": ticketWaiting, "customer reply": ticketInProgress,
			"resolved": ticketResolved, "invoiced": ticketClosed, "closed": ticketClosed,
		},
		priorities: map[string]domain.TicketPriority{
			"0 urgent": domain.PriorityUrgent, "1 high": domain.PriorityHigh, "2 normal": domain.PriorityMedium,
			"3 low": domain.PriorityLow, "urgent": domain.PriorityUrgent, "high": domain.PriorityHigh,
			"normal": domain.PriorityMedium, "low": domain.PriorityLow,
		},
	},
	domain.EntityDevice: {
		fields: fields{ID: "id", Company: "customer_id", Name: "name", DeviceType: "asset_type",
			Serial: "asset_serial", OS: "properties.os|properties.kabuto_information.os.name"},
	},
}

var freshserviceMapping = vendorMapping{
	domain.EntityCompany: {
		fields: fields{ID: "id", Name: "name"},
	},
	domain.EntityContact: {
		fields: fields{ID: "id", Company: "department_ids.0", FirstName: "first_name", LastName: "last_name",
			Email: "primary_email", Phone: "work_phone_number|mobile_phone_number", Title: "job_title", Status: "active"},
		statuses: activeFlag,
	},
	domain.EntityTicket: {
		fields: fields{ID: "id", Company: "department_id", Contact: "requester_id", Subject: "subject",
			Status: "status", Priority: "priority", OpenedAt: "created_at", ClosedAt: "stats.closed_at"},
		statuses: map[string]string{
			"2": ticketNew, "3": ticketWaiting, "4": ticketResolved, "5": ticketClosed,
		},
		priorities: map[string]domain.TicketPriority{
			"1": domain.PriorityLow, "2": domain.PriorityMedium, "3": domain.PriorityHigh, "4": domain.PriorityUrgent,
		},
	},
	domain.EntityDevice: {
		fields: fields{ID: "display_id|id", Company: "department_id", Name: "name", DeviceType: "asset_type_id",
			Serial: "type_fields.serial_number"},
	},
}

var zendeskMapping = vendorMapping{
	domain.EntityCompany: {
		fields: fields{ID: "id", Name: "name"},
	},
	domain.EntityContact: {
		fields: fields{ID: "id", Company: "organization_id", Name: "name", Email: "email", Phone: "phone",
			Status: "active"},
		statuses: activeFlag,
	},
	domain.EntityTicket: {
		fields: fields{ID: "id", Company: "organization_id", Contact: "requester_id", Subject: "subject",
			Status: "status", Priority: "priority", OpenedAt: "created_at"},
		statuses: map[string]string{
			"new": ticketNew, "open": ticketInProgress, "pending": ticketWaiting, "hold": ticketWaiting,
			"solved": ticketResolved, "closed": ticketClosed,
		},
		priorities: lowMediumHighUrgent,
	},
}

var itflowMapping = vendorMapping{
	domain.EntityCompany: {
		fields: fields{ID: "client_id", Name: "client_name", Website: "client_website"},
	},
	domain.EntityContact: {
		fields: fields{ID: "contact_id", Company: "contact_client_id", Name: "contact_name",
			Email: "contact_email", Phone: "contact_phone|contact_mobile", Title: "contact_title"},
	},
	domain.EntityTicket: {
		fields: fields{ID: "ticket_id", Company: "ticket_client_id", Contact: "ticket_contact_id",
			Subject: "ticket_subject", Status: "ticket_status", Priority: "ticket_priority",
			OpenedAt: "ticket_created_at", ClosedAt: "ticket_closed_at"},
		statuses: map[string]string{
			"new": ticketNew, "open": ticketInProgress, "on hold": ticketWaiting, "auto close": ticketResolved,
			"resolved": ticketResolved, "closed": ticketClosed,
			"1": ticketNew, "2": ticketInProgress, "3": ticketWaiting, "4": ticketResolved, "5": ticketClosed,
		},
		priorities: lowMediumHighUrgent,
	},
	domain.EntityDevice: {
		fields: fields{ID: "asset_id", Company: "asset_client_id", Name: "asset_name", DeviceType: "asset_type",
			Serial: "asset_serial", OS: "asset_os"},
	},
}

var ninjaOneMapping = vendorMapping{
	domain.EntityCompany: {
		fields: fields{ID: "id", Name: "name"},
	},
	domain.EntityDevice: {
		fields: fields{ID: "id", Company: "organizationId", Name: "displayName|systemName|dnsName",
			DeviceType: "nodeClass", Serial: "system.serialNumber", OS: "os.name", Status: "offline"},
		statuses: map[string]string{"true": offline, "false": online},
	},
}

var ateraMapping = vendorMapping{
	domain.EntityCompany: {
		fields: fields{ID: "CustomerID", Name: "CustomerName", Phone: "Phone", Website: "Domain"},
	},
	domain.EntityContact: {
		fields: fields{ID: "EndUserID", Company: "CustomerID", FirstName: "Firstname", LastName: "Lastname",
			Email: "Email", Phone: "Phone", Title: "JobTitle"},
	},
	domain.EntityTicket: {
		fields: fields{ID: "TicketID", Company: "CustomerID", Contact: "EndUserID", Subject: "TicketTitle",
			Status: "TicketStatus", Priority: "TicketPriority", OpenedAt: "TicketCreatedDate", ClosedAt: "TicketResolvedDate"},
		statuses: map[string]string{
			"open": ticketNew, "pending": ticketWaiting, "resolved": ticketResolved, "closed": ticketClosed,
		},
		priorities: lowMediumHighUrgent,
	},
	domain.EntityDevice: {
		fields: fields{ID: "AgentID", Company: "CustomerID", Name: "MachineName|AgentName", DeviceType: "OSType",
			Serial: "VendorSerialNumber", OS: "OS", Status: "Online"},
		statuses: map[string]string{"true": online, "false": offline},
	},
}
