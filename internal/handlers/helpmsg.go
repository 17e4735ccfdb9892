package handlers

// helpLines is the fixed body of the HELP response, listing the verbs
// this server accepts, in the order RFC 2229 §3.11 presents them. OPTION
// MIME and AUTH are listed but answered with 502.
var helpLines = []string{
	"DEFINE database word         -- look up word in database",
	"MATCH database strategy word -- match word in database using strategy",
	"SHOW DB                      -- list all accessible databases",
	"SHOW DATABASES               -- list all accessible databases",
	"SHOW STRAT                   -- list available matching strategies",
	"SHOW STRATEGIES              -- list available matching strategies",
	"SHOW INFO database           -- provide information about the database",
	"SHOW SERVER                  -- provide site-specific information",
	"OPTION MIME                  -- use MIME headers",
	"CLIENT info                  -- identify client to server",
	"AUTH user string              -- provide authentication information",
	"STATUS                       -- display server status",
	"HELP                         -- display this help information",
	"QUIT                         -- terminate connection",
}
