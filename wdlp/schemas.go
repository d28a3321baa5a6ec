package wdlp

const maxSystemID = 999999999

// AMSchema is the Amateur License record.
var AMSchema = MustSchema("AM",
	Char("record_type", 2),
	Numeric("system_id", 0, maxSystemID),
	Char("uls_file_number", 14),
	Varchar("ebf_number", 30),
	Char("call_sign", 10),
	Char("operator_class", 1),
	Char("group_code", 1),
	Numeric("region_code", 0, 255),
	Char("trustee_call_sign", 10),
	Char("trustee_indicator", 1),
	Char("physician_certification", 1),
	Char("ve_signature", 1),
	Char("systematic_call_sign_change", 1),
	Char("vanity_call_sign_change", 1),
	Char("vanity_relationship", 12),
	Char("previous_call_sign", 10),
	Char("previous_operator_class", 1),
	Varchar("trustee_name", 50),
)

// ENSchema is the Entity record.
var ENSchema = MustSchema("EN",
	Char("record_type", 2),
	Numeric("system_id", 0, maxSystemID),
	Char("uls_file_number", 14),
	Varchar("ebf_number", 30),
	Char("call_sign", 10),
	Char("entity_type", 2),
	Char("licensee_id", 9),
	Varchar("entity_name", 200),
	Varchar("first_name", 20),
	Char("mi", 1),
	Varchar("last_name", 20),
	Char("suffix", 3),
	Char("phone", 10),
	Char("fax", 10),
	Varchar("email", 50),
	Varchar("street_address", 60),
	Varchar("city", 20),
	Char("state", 2),
	Char("zip_code", 9),
	Varchar("po_box", 20),
	Varchar("attention_line", 35),
	Char("sgin", 3),
	Char("frn", 10),
	Char("applicant_type_code", 1),
	Varchar("applicant_type_code_other", 40),
	Char("status_code", 1),
	Date("status_date"),
	Char("license_type", 1),
	Numeric("linked_system_id", 0, maxSystemID),
	Char("linked_call_sign", 10),
)

// BuiltinSchemas is the record type => schema table used when no
// configuration overrides it.
func BuiltinSchemas() SchemaSet {
	return SchemaSet{
		AMSchema.Code: AMSchema,
		ENSchema.Code: ENSchema,
	}
}
