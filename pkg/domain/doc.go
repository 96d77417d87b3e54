/*
Package domain contains the core domain models of the Parley orchestrator.

It defines the dialogue timeline, the handler descriptors that the classifier chooses
from, and the result every turn resolves to. This package is kept pure and free of
external dependencies like I/O or persistence, following Hexagonal Architecture principles.

# Key Entities

  - Message: One immutable entry of the dialogue (user utterance or handler response).
  - DialogueState: The ordered, append-only history owned by a session.
  - HandlerDescriptor: The name and description of a routable handler.
  - ClassificationResult: The handler name selected by the classifier.
  - RunResult: The terminal outcome of a turn (output or error) plus the updated state.
*/
package domain
