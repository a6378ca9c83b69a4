// Package webhook implements the inbound Notion webhook endpoint with
// HMAC-SHA256 verification and tenant resolution.
//
// # Security Model
//
// - HMAC-SHA256 signatures verified using crypto/subtle (constant-time comparison)
// - Body size limits enforced to prevent DoS attacks
// - No signature details leaked in error responses (generic 401)
// - Request logging excludes sensitive payloads
//
// # Request Flow
//
//  1. HTTP POST arrives at /notion/webhook
//  2. Body size checked (reject with 413 if too large)
//  3. Challenge payloads echoed back immediately (subscription handshake;
//     no authentication, since the handshake precedes secret issuance)
//  4. Signature header extracted and matched against every stored webhook
//     secret; a match resolves the sending workspace via the reverse index
//  5. Under the signature_or_automation_secret policy, the automation-secret
//     header resolves the workspace by incoming-secret lookup instead
//  6. With neither credential, a workspace_id in the payload is trusted
//     as-is (intentional fallback for pre-verification deliveries)
//  7. Events dispatched to the sink; sink failures are logged and swallowed
//     so the sender's retry policy is never triggered by internal errors
//
// # Error Responses
//
// - 401 Unauthorized: signature or automation-secret mismatch
// - 400 Bad Request: no workspace resolvable by any path
// - 413 Payload Too Large: body exceeds the configured limit
package webhook
