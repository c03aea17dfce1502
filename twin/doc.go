/*Package twin provides the REST interface of the twin registry

A twin is a registered record for an external digital-twin entity. It names a
specification resource, carries an ordered list of capability strings and the
address of the event mesh endpoint the entity reports to. Every twin is owned
by the user that registered it; all reads and mutations are scoped to that
owner.

The API provides the following REST routes:

	POST   /twin.register
	GET    /twin.query
	GET    /twins                   (alias, redirects to /twin.query)
	GET    /twin/{twin_id}
	PUT    /twin/{twin_id}
	DELETE /twin/{twin_id}
	POST   /twin/{twin_id}/heartbeat

All routes except the alias require a user caller resolved from a bearer
token. The per-twin heartbeat route also accepts a privileged service caller
holding the mesh token; in that case the owner scope does not apply.

Capabilities are stored as a single comma-joined string and presented as a
JSON list. A capability value must not contain the comma delimiter; the API
rejects such values at registration and update time.

Example:

	curl .../twin/3f8a...
	{
	 "id": "3f8a...",
	 "ownerId": "7d41...",
	 "specURL": "https://x/spec.json",
	 "capabilities": ["temp", "gps"],
	 "eventMeshURL": "ws://localhost:5000",
	 "lastTelemetryAt": "2026-08-30T16:39:49.581168Z",
	 "createdAt": "2026-08-29T10:02:11.44186Z"
	}
*/
package twin
