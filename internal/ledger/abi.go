package ledger

// Contract ABIs, limited to the methods this client calls. Writes take their
// caller from msg.sender; the commitment read carries an explicit caller plus
// its read-authorization signature.

const identityRegistryABI = `[
 {"type":"function","name":"registerDID","stateMutability":"nonpayable","inputs":[{"name":"did","type":"string"},{"name":"owner","type":"address"},{"name":"trustLevel","type":"uint8"},{"name":"roles","type":"bytes32[]"}],"outputs":[]},
 {"type":"function","name":"verifyDID","stateMutability":"nonpayable","inputs":[{"name":"did","type":"string"}],"outputs":[]},
 {"type":"function","name":"isDIDRegistered","stateMutability":"view","inputs":[{"name":"did","type":"string"}],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"getDID","stateMutability":"view","inputs":[{"name":"did","type":"string"}],"outputs":[{"name":"owner","type":"address"},{"name":"trustLevel","type":"uint8"},{"name":"roles","type":"bytes32[]"},{"name":"verified","type":"bool"},{"name":"registeredAt","type":"uint256"}]},
 {"type":"function","name":"validateDIDRole","stateMutability":"view","inputs":[{"name":"did","type":"string"},{"name":"role","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]}
]`

const credentialRegistryABI = `[
 {"type":"function","name":"issueVerifiableCredential","stateMutability":"nonpayable","inputs":[{"name":"id","type":"string"},{"name":"subjectDid","type":"string"},{"name":"claims","type":"bytes"},{"name":"expiresAt","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"signCredential","stateMutability":"nonpayable","inputs":[{"name":"id","type":"string"},{"name":"signature","type":"bytes"}],"outputs":[]},
 {"type":"function","name":"validateVerifiableCredential","stateMutability":"view","inputs":[{"name":"id","type":"string"}],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"revokeCredential","stateMutability":"nonpayable","inputs":[{"name":"id","type":"string"}],"outputs":[]},
 {"type":"function","name":"getIssuedTimestamp","stateMutability":"view","inputs":[{"name":"id","type":"string"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"getCredential","stateMutability":"view","inputs":[{"name":"id","type":"string"}],"outputs":[{"name":"subjectDid","type":"string"},{"name":"issuer","type":"address"},{"name":"claims","type":"bytes"},{"name":"issuedAt","type":"uint256"},{"name":"expiresAt","type":"uint256"},{"name":"signature","type":"bytes"},{"name":"revoked","type":"bool"}]}
]`

const passportABI = `[
 {"type":"function","name":"exists","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"getBatteryPassport","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"owner","type":"address"},{"name":"organization","type":"string"},{"name":"lifecycleStatus","type":"string"},{"name":"status","type":"string"}]},
 {"type":"function","name":"getLifecycleStatus","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"string"}]},
 {"type":"function","name":"nonces","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"grantRole","stateMutability":"nonpayable","inputs":[{"name":"role","type":"bytes32"},{"name":"account","type":"address"}],"outputs":[]},
 {"type":"function","name":"assignOrganization","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"},{"name":"organization","type":"string"}],"outputs":[]},
 {"type":"function","name":"updateMaterialComposition","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"},{"name":"didHash","type":"bytes32"},{"name":"credentialId","type":"string"},{"name":"compositionHash","type":"bytes32"},{"name":"dueDiligenceHash","type":"bytes32"},{"name":"signature","type":"bytes"}],"outputs":[]},
 {"type":"function","name":"updateDueDiligence","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"},{"name":"didHash","type":"bytes32"},{"name":"credentialId","type":"string"},{"name":"contentHash","type":"bytes32"},{"name":"signature","type":"bytes"}],"outputs":[]},
 {"type":"function","name":"updateLifecycleStatus","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"},{"name":"didHash","type":"bytes32"},{"name":"credentialId","type":"string"},{"name":"contentHash","type":"bytes32"},{"name":"status","type":"string"},{"name":"nonce","type":"uint256"},{"name":"signature","type":"bytes"}],"outputs":[]},
 {"type":"function","name":"transferOwnership","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"},{"name":"didHash","type":"bytes32"},{"name":"credentialId","type":"string"},{"name":"contentHash","type":"bytes32"},{"name":"newOwner","type":"address"},{"name":"nonce","type":"uint256"},{"name":"signature","type":"bytes"}],"outputs":[]},
 {"type":"function","name":"updateStatus","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"},{"name":"didHash","type":"bytes32"},{"name":"credentialId","type":"string"},{"name":"contentHash","type":"bytes32"},{"name":"status","type":"string"},{"name":"signature","type":"bytes"}],"outputs":[]},
 {"type":"function","name":"reportDiscrepancy","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"},{"name":"didHash","type":"bytes32"},{"name":"credentialId","type":"string"},{"name":"contentHash","type":"bytes32"},{"name":"signature","type":"bytes"}],"outputs":[]},
 {"type":"function","name":"getContentCommitment","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"},{"name":"action","type":"string"},{"name":"caller","type":"address"},{"name":"signature","type":"bytes"}],"outputs":[{"name":"","type":"bytes32"}]}
]`
